package main

import (
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

// newIdentityCmd 身份管理子命令
func newIdentityCmd() *cobra.Command {
	identityCmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage identities",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new did:key identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			alias, _ := cmd.Flags().GetString("alias")
			var out map[string]any
			err := newAPIClient().do(http.MethodPost, "/api/v1/identities",
				map[string]any{"alias": alias}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	createCmd.Flags().String("alias", "", "alias for the identity's signing key")

	importCmd := &cobra.Command{
		Use:   "import <did>",
		Short: "Import a remote identity and start syncing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			err := newAPIClient().do(http.MethodPost, "/api/v1/identities/import",
				map[string]any{"did": args[0]}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List identities registered for sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := newAPIClient().do(http.MethodGet, "/api/v1/identities", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	resolveCmd := &cobra.Command{
		Use:   "resolve <did>",
		Short: "Resolve a DID document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			err := newAPIClient().do(http.MethodGet,
				"/api/v1/identities/"+url.PathEscape(args[0]), nil, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	identityCmd.AddCommand(createCmd, importCmd, listCmd, resolveCmd)
	return identityCmd
}
