package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"goa.design/relay/taskq"
)

var (
	masterTasks    int
	masterInterval time.Duration
)

var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Run a master node",
	Long: `Run a master node that sends demo tasks and relays the results
committed by slaves until interrupted.`,
	Example: `  relay master --config relay.yaml --tasks 10 --interval 1s`,
	RunE:    runMaster,
}

func init() {
	masterCmd.Flags().IntVar(&masterTasks, "tasks", 5, "number of tasks sent every interval, 0 to only relay results")
	masterCmd.Flags().DurationVar(&masterInterval, "interval", time.Second, "interval between two batches of tasks")
}

func runMaster(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	master, err := taskq.NewMaster(e.ctx, e.backend, e.cfg.Options(e.logger, e.metrics)...)
	if err != nil {
		return err
	}
	defer func() {
		if err := master.Close(context.Background()); err != nil {
			e.logger.Error(err)
		}
	}()
	selector, err := taskq.NewQueueSelector(e.cfg.Queues)
	if err != nil {
		return err
	}
	e.logger.Info("master started", "node", master.NodeID())

	ticker := time.NewTicker(masterInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for i := 0; i < masterTasks; i++ {
			deadline := time.Now().Add(time.Duration(i) * 10 * time.Second)
			task := fmt.Sprintf("task-%s", ulid.Make())
			// Higher scores are consumed first, earlier deadlines win.
			score := -float64(deadline.UnixMilli())
			if err := master.Send(ctx, selector.ForDeadline(deadline), score, task); err != nil {
				e.logger.Error(err)
			}
		}
		if err := relayResults(ctx, e, master); err != nil && ctx.Err() == nil {
			e.logger.Error(err)
		}
	}
}

// relayResults consumes and commits all the pending results.
func relayResults(ctx context.Context, e *env, master *taskq.Master) error {
	for {
		result, ok, err := master.Consume(ctx)
		if err != nil || !ok {
			return err
		}
		e.logger.Info("result", "value", result)
		if err := master.Commit(ctx, result); err != nil {
			return err
		}
	}
}
