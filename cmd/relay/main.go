// Command relay runs relay master and slave nodes and inspects a relay
// namespace.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	redisAddr string
	prefix    string
	debug     bool
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Redis backed distributed task queue",
	Long: `relay runs the master and slave nodes of a Redis backed task queue.

Masters send tasks into priority queues and relay the results produced by
slaves. One node of the deployment is elected leader: it watches heartbeats
and hands the in-flight work of dead nodes back to the queues.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis-addr", "", "Redis address, overrides the configuration file")
	rootCmd.PersistentFlags().StringVar(&prefix, "prefix", "", "key namespace, overrides the configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logs")
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(masterCmd, slaveCmd, statusCmd, resetCmd, rebalanceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
