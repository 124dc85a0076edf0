package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"goa.design/relay/taskq"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all the keys of a namespace",
	Long: `Delete the queues, the execute ledger, the heartbeats, the leader
record, the consumer locks and the queue assignments of a namespace.
Nodes must be stopped first.`,
	Example: `  relay reset --prefix app --force`,
	RunE:    runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "confirm the deletion")
}

func runReset(cmd *cobra.Command, _ []string) error {
	if !resetForce {
		return errors.New("reset deletes all the data of the namespace, use --force to confirm")
	}
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	n, err := taskq.Reset(e.ctx, e.backend, e.cfg.Prefix, e.cfg.Queues)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d keys from %s\n", n, e.cfg.Prefix)
	return nil
}
