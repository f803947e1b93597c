package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ledgerPrefix = "govledger/contexts/governance/proposal-ledger"

func TestCheckImportAllowsLayerDependencies(t *testing.T) {
	cases := []struct {
		layer string
		path  string
	}{
		{"domain", "encoding/binary"},
		{"domain", "github.com/mr-tron/base58"},
		{"domain", "golang.org/x/crypto/blake2b"},
		{"domain", ledgerPrefix + "/domain/errors"},
		{"ports", ledgerPrefix + "/domain/entities"},
		{"application", ledgerPrefix + "/ports"},
		{"application", "govledger/contracts/events/v1"},
		{"adapters", "github.com/jackc/pgx/v5"},
		{"transport", "time"},
	}
	for _, tc := range cases {
		assert.Empty(t, checkImport(tc.path, tc.layer, ledgerPrefix), "%s -> %s", tc.layer, tc.path)
	}
}

func TestCheckImportRejectsLayerLeaks(t *testing.T) {
	broken := checkImport(ledgerPrefix+"/adapters/postgres", "application", ledgerPrefix)
	assert.Contains(t, broken, "application must not import adapters")
	assert.Contains(t, broken, "application import is outside explicit allowlist")

	broken = checkImport("govledger/internal/platform/db", "domain", ledgerPrefix)
	assert.Contains(t, broken, "domain must not import runtime infrastructure")

	broken = checkImport(ledgerPrefix+"/application/commands", "ports", ledgerPrefix)
	assert.Contains(t, broken, "ports must not import application code")

	broken = checkImport("github.com/redis/go-redis/v9", "domain", ledgerPrefix)
	assert.Equal(t, []string{"domain import is outside explicit allowlist"}, broken)
}

func TestCheckImportRejectsCrossModule(t *testing.T) {
	broken := checkImport("govledger/contexts/governance/treasury/domain", "adapters", ledgerPrefix)
	assert.Equal(t, []string{"cross-module imports are forbidden"}, broken)
}

func TestIsStdlib(t *testing.T) {
	assert.True(t, isStdlib("net/http"))
	assert.True(t, isStdlib("context"))
	assert.False(t, isStdlib("github.com/google/uuid"))
	assert.False(t, isStdlib("govledger/contracts/events/v1"))
}

func TestCollectViolationsReportsFileAndLine(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "governance", "proposal-ledger", "domain", "entities")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	source := "package entities\n\nimport (\n\t\"strings\"\n\t\"govledger/internal/platform/db\"\n)\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leak.go"), []byte(source), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leak_test.go"), []byte(source), 0o644))

	violations := collectViolations(root)
	require.Len(t, violations, 2)
	for _, v := range violations {
		assert.Equal(t, 5, v.Line)
		assert.Equal(t, "govledger/internal/platform/db", v.Import)
		assert.Equal(t, "leak.go", filepath.Base(v.File))
	}
}
