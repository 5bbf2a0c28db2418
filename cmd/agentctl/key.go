package main

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// newKeyCmd 密钥管理子命令
func newKeyCmd() *cobra.Command {
	keyCmd := &cobra.Command{
		Use:   "key",
		Short: "Manage keys",
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new key",
		RunE: func(cmd *cobra.Command, args []string) error {
			algorithm, _ := cmd.Flags().GetString("algorithm")
			kms, _ := cmd.Flags().GetString("kms")
			alias, _ := cmd.Flags().GetString("alias")
			usages, _ := cmd.Flags().GetStringSlice("usage")

			var out map[string]any
			err := newAPIClient().do(http.MethodPost, "/api/v1/keys", map[string]any{
				"kms":       kms,
				"algorithm": map[string]any{"name": algorithm},
				"usages":    usages,
				"alias":     alias,
			}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	generateCmd.Flags().String("algorithm", "Ed25519", "algorithm name")
	generateCmd.Flags().String("kms", "", "target KMS backend (defaults to the agent's sole backend)")
	generateCmd.Flags().String("alias", "", "key alias")
	generateCmd.Flags().StringSlice("usage", []string{"sign", "verify"}, "key usages")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List keys across all backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := newAPIClient().do(http.MethodGet, "/api/v1/keys", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <key-id>",
		Short: "Show one key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := newAPIClient().do(http.MethodGet, "/api/v1/keys/"+args[0], nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	disableCmd := &cobra.Command{
		Use:   "disable <key-id>",
		Short: "Disable a key; keys are never deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			err := newAPIClient().do(http.MethodPatch, "/api/v1/keys/"+args[0],
				map[string]any{"state": "disabled"}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	signCmd := &cobra.Command{
		Use:   "sign <key-id> <data>",
		Short: "Sign data with a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Signature []byte `json:"signature"`
			}
			err := newAPIClient().do(http.MethodPost, "/api/v1/keys/"+args[0]+"/sign",
				map[string]any{"data": []byte(args[1])}, &out)
			if err != nil {
				return err
			}
			fmt.Println(base64.StdEncoding.EncodeToString(out.Signature))
			return nil
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <key-id> <data> <signature-base64>",
		Short: "Verify a signature",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			signature, err := base64.StdEncoding.DecodeString(args[2])
			if err != nil {
				return fmt.Errorf("signature is not valid base64: %w", err)
			}
			var out struct {
				Valid bool `json:"valid"`
			}
			err = newAPIClient().do(http.MethodPost, "/api/v1/keys/"+args[0]+"/verify",
				map[string]any{"data": []byte(args[1]), "signature": signature}, &out)
			if err != nil {
				return err
			}
			fmt.Println(out.Valid)
			return nil
		},
	}

	keyCmd.AddCommand(generateCmd, listCmd, getCmd, disableCmd, signCmd, verifyCmd)
	return keyCmd
}
