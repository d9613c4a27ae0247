package revsentryrpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/roasbeef/revsentry/internal/llmclient"
)

const bufSize = 1024 * 1024

func startBufconnServer(t *testing.T, srv *Server) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(bufSize)

	grpcServer := grpc.NewServer()
	RegisterReviewServiceServer(grpcServer, srv)

	go func() { _ = grpcServer.Serve(lis) }()
	t.Cleanup(grpcServer.Stop)
	return lis
}

func dial(t *testing.T, lis *bufconn.Listener) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStartReviewAndStreamProgressEndToEnd(t *testing.T) {
	stub := llmclient.NewStub()
	srv := NewServer(DefaultServerConfig(), stub)
	lis := startBufconnServer(t, srv)
	conn := dial(t, lis)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var startResp StartReviewResponse
	err := conn.Invoke(ctx, "/revsentry.ReviewService/StartReview",
		&StartReviewRequest{ExternalDiff: "diff --git a/x.go b/x.go\n--- a/x.go\n+++ b/x.go\n@@ -1 +1 @@\n-a\n+b\n"}, &startResp)
	require.NoError(t, err)
	require.NotEmpty(t, startResp.ReviewID)

	stream, err := conn.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    "StreamProgress",
		ServerStreams: true,
	}, "/revsentry.ReviewService/StreamProgress")
	require.NoError(t, err)

	require.NoError(t, stream.SendMsg(&StreamProgressRequest{ReviewID: startResp.ReviewID}))
	require.NoError(t, stream.CloseSend())

	sawDone := false
	for {
		var ev ProgressEvent
		err := stream.RecvMsg(&ev)
		if err != nil {
			break
		}
		if ev.Done {
			sawDone = true
			break
		}
	}
	require.True(t, sawDone)
}

func TestStreamProgressUnknownReviewIDErrors(t *testing.T) {
	stub := llmclient.NewStub()
	srv := NewServer(DefaultServerConfig(), stub)
	lis := startBufconnServer(t, srv)
	conn := dial(t, lis)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := conn.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    "StreamProgress",
		ServerStreams: true,
	}, "/revsentry.ReviewService/StreamProgress")
	require.NoError(t, err)

	require.NoError(t, stream.SendMsg(&StreamProgressRequest{ReviewID: "does-not-exist"}))
	require.NoError(t, stream.CloseSend())

	var ev ProgressEvent
	err = stream.RecvMsg(&ev)
	require.Error(t, err)
}

func TestStartReviewRejectsEmptyRequest(t *testing.T) {
	stub := llmclient.NewStub()
	srv := NewServer(DefaultServerConfig(), stub)

	_, err := srv.StartReview(context.Background(), &StartReviewRequest{})
	require.Error(t, err)
}
