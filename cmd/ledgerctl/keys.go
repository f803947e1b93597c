package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"govledger/contexts/governance/proposal-ledger/domain/entities"
	"govledger/internal/platform/auth"

	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"
)

type keyPair struct {
	Identity   string `json:"identity"`
	PrivateKey string `json:"private_key"`
}

// generateKeyPair returns an ed25519 key whose public half is the ledger
// identity.
func generateKeyPair() (keyPair, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return keyPair{}, err
	}
	var identity entities.Identity
	copy(identity[:], public)
	return keyPair{
		Identity:   identity.String(),
		PrivateKey: base58.Encode(private),
	}, nil
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new participant identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pair, err := generateKeyPair()
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), pair)
		},
	}
}

func newTokenCmd() *cobra.Command {
	var identity string
	var secret string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an identity",
		Long: `Mint an HS256 bearer token for an identity. The secret must match the
JWT_SECRET the API runs with.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := entities.ParseIdentity(identity); err != nil {
				return fmt.Errorf("--identity: %w", err)
			}
			if strings.TrimSpace(secret) == "" {
				return errors.New("--secret or JWT_SECRET is required")
			}
			issuer, err := auth.NewIssuer(secret)
			if err != nil {
				return err
			}
			token, err := issuer.Issue(identity, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "base58 identity to put in the token subject")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HS256 signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("identity")
	return cmd
}
