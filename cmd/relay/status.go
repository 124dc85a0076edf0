package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"goa.design/relay/leader"
	"goa.design/relay/taskq"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a namespace",
	Long: `Show the leader, the known nodes with the age of their last
heartbeat and their in-flight tasks, the queue assignments and the queue
sizes.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	st, err := taskq.Inspect(e.ctx, e.backend, e.cfg.Prefix, e.cfg.Queues)
	if err != nil {
		return err
	}
	printStatus(e, st, time.Now())
	return nil
}

func printStatus(e *env, st *taskq.Status, now time.Time) {
	threshold := time.Duration(e.cfg.Heartbeat.ExpirationCount) * e.cfg.Heartbeat.Interval
	leaderID := st.Leader
	if leaderID == "" {
		leaderID = "none"
	}
	fmt.Printf("namespace: %s\nleader:    %s\n\n", e.cfg.Prefix, leaderID)

	nodes := make([]string, 0, len(st.Heartbeats))
	for n := range st.Heartbeats {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tROLE\tLAST SEEN\tSTATE\tIN FLIGHT\tQUEUES")
	for _, n := range nodes {
		age := now.Sub(st.Heartbeats[n]).Truncate(time.Second)
		state := "active"
		if age > threshold {
			state = "expired"
		}
		queues := "-"
		if qs, ok := st.Assignments[n]; ok {
			queues = fmt.Sprint(qs)
		}
		fmt.Fprintf(w, "%s\t%s\t%s ago\t%s\t%d\t%s\n", n, leader.RoleOf(n), age, state, st.Ledgers[n], queues)
	}
	w.Flush()

	sizes := make([]string, len(st.QueueSizes))
	for i, s := range st.QueueSizes {
		sizes[i] = fmt.Sprintf("%d:%d", i, s)
	}
	fmt.Printf("\nqueues:  %s\nresults: %d\n", strings.Join(sizes, " "), st.Results)
}
