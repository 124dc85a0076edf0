package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"goa.design/relay/leader"
	"goa.design/relay/rebalance"
	"goa.design/relay/storage"
	"goa.design/relay/taskq"
)

var rebalanceCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "Recompute the queue assignments",
	Long: `Recompute the queue assignments of the active slaves with the
configured strategy and print the result. Useful after adding slaves since
the leader only rebalances when a node expires.`,
	RunE: runRebalance,
}

func runRebalance(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	keys := storage.NewKeys(e.cfg.Prefix)
	strategy, err := rebalance.New(e.cfg.Strategy, e.backend, keys.RebalanceMap(), rebalance.WithLogger(e.logger))
	if err != nil {
		return err
	}
	// The service is never started so the command does not register as a
	// node.
	svc := leader.New(leader.NodeID("admin", taskq.ProcessIdentity()), e.backend, strategy,
		leader.WithKeys(keys),
		leader.WithHeartbeatInterval(e.cfg.Heartbeat.Interval),
		leader.WithExpirationCount(e.cfg.Heartbeat.ExpirationCount),
		leader.WithQueueCount(e.cfg.Queues),
		leader.WithLogger(e.logger),
		leader.WithMetrics(e.metrics))
	if err := svc.Rebalance(e.ctx); err != nil {
		return err
	}
	assignments, err := rebalance.Load(e.ctx, e.backend, keys.RebalanceMap())
	if err != nil {
		return err
	}
	nodes := make([]string, 0, len(assignments))
	for n := range assignments {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		fmt.Printf("%s\t%v\n", n, assignments[n])
	}
	return nil
}
