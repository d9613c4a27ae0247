package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileCacheRoundTrip(t *testing.T) {
	c, err := Open("")
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, ok, err := c.GetFile(ctx, "src/x.go")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.PutFile(ctx, "src/x.go", "package x"))

	content, ok, err := c.GetFile(ctx, "src/x.go")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "package x", content)

	require.NoError(t, c.PutFile(ctx, "src/x.go", "package x // updated"))
	content, ok, err = c.GetFile(ctx, "src/x.go")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "package x // updated", content)
}

func TestSessionSummaryRoundTrip(t *testing.T) {
	c, err := Open("")
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, _, ok, err := c.GetSessionSummary(ctx, "session-1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.PutSessionSummary(ctx, "session-1", "3 issues found so far", 450))

	summary, tokens, ok, err := c.GetSessionSummary(ctx, "session-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "3 issues found so far", summary)
	require.EqualValues(t, 450, tokens)
}

func TestCloseRemovesFileBackedDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "run.db")

	c, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoFileExists(t, dbPath)

	c2, err := Open(dbPath)
	require.NoError(t, err)
	defer c2.Close()
}
