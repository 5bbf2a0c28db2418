package main

import (
	"net/http"

	"github.com/spf13/cobra"
)

// newSyncCmd 同步子命令
func newSyncCmd() *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Control synchronization",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sync cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := newAPIClient().do(http.MethodPost, "/api/v1/sync/run", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show registrations and pending work",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := newAPIClient().do(http.MethodGet, "/api/v1/sync/status", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	syncCmd.AddCommand(runCmd, statusCmd)
	return syncCmd
}
