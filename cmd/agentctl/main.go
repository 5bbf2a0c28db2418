// Package main provides agentctl, the command-line client for a running
// DID agent.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	tenantID  string
)

// rootCmd 是 agentctl 的入口命令。
var rootCmd = &cobra.Command{
	Use:   "agentctl",
	Short: "Command-line client for the DID agent",
	Long: `agentctl talks to a running DID agent over its REST API to manage
keys and identities and to drive synchronization.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "agent base URL")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "tenant to act on (defaults to the agent's tenant)")

	rootCmd.AddCommand(newKeyCmd(), newIdentityCmd(), newSyncCmd())
}
