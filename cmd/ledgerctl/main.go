package main

import (
	"fmt"
	"os"
)

// ledgerctl drives a running ledger API: it mints local identities and
// tokens, and submits create/vote/close instructions.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
