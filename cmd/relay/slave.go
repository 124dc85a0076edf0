package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"goa.design/relay/taskq"
)

var (
	slaveUnlocked bool
	slavePoll     time.Duration
	slaveWork     time.Duration
)

var slaveCmd = &cobra.Command{
	Use:   "slave",
	Short: "Run a slave node",
	Long: `Run a slave node that consumes tasks, simulates their execution and
commits their results until interrupted.

By default queues are consumed under a per-queue lock. With --unlocked the
slave only consumes the queues assigned to it by the rebalance strategy,
which requires at least as many queues as slaves.`,
	Example: `  relay slave --config relay.yaml --unlocked`,
	RunE:    runSlave,
}

func init() {
	slaveCmd.Flags().BoolVar(&slaveUnlocked, "unlocked", false, "consume the assigned queues without locking")
	slaveCmd.Flags().DurationVar(&slavePoll, "poll", 500*time.Millisecond, "wait time when no task is available")
	slaveCmd.Flags().DurationVar(&slaveWork, "work", 100*time.Millisecond, "simulated execution time of a task")
}

func runSlave(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	slave, err := taskq.NewSlave(e.ctx, e.backend, e.cfg.Options(e.logger, e.metrics)...)
	if err != nil {
		return err
	}
	defer func() {
		if err := slave.Close(context.Background()); err != nil {
			e.logger.Error(err)
		}
	}()
	e.logger.Info("slave started", "node", slave.NodeID(), "unlocked", slaveUnlocked)

	consume := slave.Consume
	if slaveUnlocked {
		consume = slave.ConsumeUnlocked
	}
	for ctx.Err() == nil {
		task, ok, err := consume(ctx)
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Error(err)
			}
		}
		if err != nil || !ok {
			sleep(ctx, slavePoll)
			continue
		}
		e.logger.Debug("running", "task", task)
		sleep(ctx, slaveWork)
		// Commit even when interrupted, the result is ready.
		if err := slave.Commit(context.Background(), task+":done", task); err != nil {
			e.logger.Error(err, "task", task)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
