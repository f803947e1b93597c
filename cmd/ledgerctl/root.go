package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	server         string
	token          string
	idempotencyKey string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Command-line client for the proposal ledger",
		Long: `ledgerctl creates proposals, casts yes/no ballots and closes proposals
against a running ledger API.

Examples:
  ledgerctl keygen
  ledgerctl token --identity <base58>
  ledgerctl create --title "Fund the bridge" --subject <base58> --expires-in 72h
  ledgerctl vote <proposal-id> yes`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.server, "server", envOr("LEDGER_SERVER", "http://localhost:8080"), "ledger API base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("LEDGER_TOKEN"), "bearer token for write commands")
	root.PersistentFlags().StringVar(&opts.idempotencyKey, "idempotency-key", "", "Idempotency-Key sent with write commands")

	root.AddGroup(
		&cobra.Group{ID: "ledger", Title: "Ledger Commands"},
		&cobra.Group{ID: "keys", Title: "Identity Commands"},
	)

	for _, cmd := range []*cobra.Command{
		newCreateCmd(opts),
		newVoteCmd(opts),
		newCloseCmd(opts),
		newShowCmd(opts),
		newListCmd(opts),
		newExecCmd(opts),
	} {
		cmd.GroupID = "ledger"
		root.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{newKeygenCmd(), newTokenCmd()} {
		cmd.GroupID = "keys"
		root.AddCommand(cmd)
	}
	return root
}

func (o *globalOptions) client() *apiClient {
	return newAPIClient(o.server, o.token)
}

func envOr(name string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func printJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
