package bffss

import (
	"testing"

	"github.com/stretchr/testify/require"

	"abiogenesis.dev/bff/internal/dbutil"
	"abiogenesis.dev/bff/internal/testutil"
)

func NewTestSys(t testing.TB) *System {
	ctx := testutil.Context(t)
	db := dbutil.NewTestDB(t)
	require.NoError(t, SetupDB(ctx, db))
	return NewSystem(db)
}
