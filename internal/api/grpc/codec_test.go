package revsentryrpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	req := &StartReviewRequest{RepoPath: "/tmp/repo", SourceRef: "main"}

	data, err := c.Marshal(req)
	require.NoError(t, err)

	var out StartReviewRequest
	require.NoError(t, c.Unmarshal(data, &out))
	require.Equal(t, *req, out)
}

func TestJSONCodecRegisteredByName(t *testing.T) {
	require.NotPanics(t, mustJSONCodec)
}
