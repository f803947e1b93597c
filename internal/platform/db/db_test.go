package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectorForDrivers(t *testing.T) {
	pg, err := dialectorFor("postgres", "postgres://ledger@localhost/ledger")
	require.NoError(t, err)
	assert.Equal(t, "postgres", pg.Name())

	my, err := dialectorFor("MySQL", "ledger:secret@tcp(localhost:3306)/ledger?parseTime=true")
	require.NoError(t, err)
	assert.Equal(t, "mysql", my.Name())

	_, err = dialectorFor("sqlite", "file.db")
	assert.Error(t, err)
}

func TestConnectRequiresDSN(t *testing.T) {
	_, err := Connect("postgres", " ")
	assert.Error(t, err)
}

func TestCloseNilDatabase(t *testing.T) {
	var database *Database
	assert.NoError(t, database.Close())
}
