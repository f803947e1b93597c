package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	ledgerhttp "govledger/contexts/governance/proposal-ledger/transport/http"

	"github.com/spf13/cobra"
)

func newCreateCmd(opts *globalOptions) *cobra.Command {
	var req ledgerhttp.CreateProposalRequest
	var expiresIn time.Duration
	var expiresAt string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a proposal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case expiresAt != "":
				parsed, err := time.Parse(time.RFC3339, expiresAt)
				if err != nil {
					return fmt.Errorf("--expires-at: %w", err)
				}
				req.ExpirationTime = parsed
			default:
				req.ExpirationTime = time.Now().UTC().Add(expiresIn)
			}

			var resp ledgerhttp.ProposalResponse
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/v1/proposals", opts.idempotencyKey, req, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "proposal title (at most 100 bytes)")
	cmd.Flags().StringVar(&req.Description, "description", "", "proposal description (at most 500 bytes)")
	cmd.Flags().StringVar(&req.SubjectID, "subject", "", "base58 identity of the subject account")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 72*time.Hour, "voting window measured from now")
	cmd.Flags().StringVar(&expiresAt, "expires-at", "", "RFC 3339 expiration time; overrides --expires-in")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newVoteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "vote <proposal-id> <yes|no>",
		Short:     "Cast or switch a ballot",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"yes", "no"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ledgerhttp.VoteResponse
			path := "/v1/proposals/" + url.PathEscape(args[0]) + "/votes"
			if err := opts.client().do(cmd.Context(), http.MethodPost, path, opts.idempotencyKey, ledgerhttp.VoteRequest{Direction: args[1]}, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newCloseCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "close <proposal-id>",
		Short: "Close a proposal and record its outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ledgerhttp.CloseProposalResponse
			path := "/v1/proposals/" + url.PathEscape(args[0]) + "/close"
			if err := opts.client().do(cmd.Context(), http.MethodPost, path, opts.idempotencyKey, nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newShowCmd(opts *globalOptions) *cobra.Command {
	var voter string
	cmd := &cobra.Command{
		Use:   "show <proposal-id>",
		Short: "Show a proposal, or one voter's ballot with --voter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/proposals/" + url.PathEscape(args[0])
			if voter != "" {
				var ballot ledgerhttp.BallotResponse
				if err := opts.client().do(cmd.Context(), http.MethodGet, path+"/ballots/"+url.PathEscape(voter), "", nil, &ballot); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), ballot)
			}
			var resp ledgerhttp.ProposalResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, path, "", nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&voter, "voter", "", "base58 voter identity")
	return cmd
}

func newListCmd(opts *globalOptions) *cobra.Command {
	var author, subject, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List proposals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			query := url.Values{}
			if author != "" {
				query.Set("author", author)
			}
			if subject != "" {
				query.Set("subject", subject)
			}
			if status != "" {
				query.Set("status", status)
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			path := "/v1/proposals"
			if encoded := query.Encode(); encoded != "" {
				path += "?" + encoded
			}
			var resp ledgerhttp.ProposalListResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, path, "", nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "only proposals by this identity")
	cmd.Flags().StringVar(&subject, "subject", "", "only proposals about this subject")
	cmd.Flags().StringVar(&status, "status", "", "open, expired or closed")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of proposals")
	return cmd
}

func newExecCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <instruction.json|->",
		Short: "Submit a raw tagged instruction",
		Long: `Submit a JSON instruction to /v1/instructions, read from a file or from
stdin when the argument is "-".

Example:
  echo '{"op":"vote","proposal_id":"<id>","direction":"yes"}' | ledgerctl exec -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var source io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				source = file
			}

			var ix ledgerhttp.InstructionRequest
			if err := json.NewDecoder(source).Decode(&ix); err != nil {
				return fmt.Errorf("decode instruction: %w", err)
			}
			var resp ledgerhttp.InstructionResponse
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/v1/instructions", opts.idempotencyKey, ix, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}
