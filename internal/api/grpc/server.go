package revsentryrpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/roasbeef/revsentry/internal/llmclient"
	"github.com/roasbeef/revsentry/internal/orchestrator"
	"github.com/roasbeef/revsentry/internal/progress"
)

// ServerConfig holds the gRPC server's listen address and keepalive
// tuning.
type ServerConfig struct {
	ListenAddr string

	ServerPingTime               time.Duration
	ServerPingTimeout            time.Duration
	ClientPingMinWait            time.Duration
	ClientAllowPingWithoutStream bool

	OrchestratorConfig orchestrator.Config
}

// DefaultServerConfig returns a ServerConfig with sane keepalive
// defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:                   "localhost:50051",
		ServerPingTime:               5 * time.Minute,
		ServerPingTimeout:            1 * time.Minute,
		ClientPingMinWait:            5 * time.Second,
		ClientAllowPingWithoutStream: true,
		OrchestratorConfig:           orchestrator.DefaultConfig(),
	}
}

// reviewState tracks one in-flight or completed review for
// StreamProgress subscribers.
type reviewState struct {
	mu     sync.Mutex
	events []progress.Event
	done   bool
	notify chan struct{}
}

func newReviewState() *reviewState {
	return &reviewState{notify: make(chan struct{})}
}

func (r *reviewState) append(ev progress.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	old := r.notify
	r.notify = make(chan struct{})
	r.mu.Unlock()
	close(old)
}

func (r *reviewState) finish() {
	r.mu.Lock()
	r.done = true
	old := r.notify
	r.mu.Unlock()
	close(old)
}

// snapshot returns every event from index onward, plus whether the
// review is done and a channel that closes when more state arrives.
func (r *reviewState) snapshot(from int) ([]progress.Event, bool, chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events[from:]...), r.done, r.notify
}

// channelObserver fans every orchestrator event into a reviewState.
type channelObserver struct {
	state *reviewState
}

func (o channelObserver) Notify(_ context.Context, ev progress.Event) {
	o.state.append(ev)
}

// Server implements ReviewServiceServer over real grpc-go transport,
// the control-plane surface from spec section 6.
type Server struct {
	cfg ServerConfig
	llm llmclient.Client

	mu      sync.Mutex
	reviews map[string]*reviewState

	grpcServer *grpc.Server
	listener   net.Listener

	started bool
	quit    chan struct{}
	wg      sync.WaitGroup

	UnimplementedReviewServiceServer
}

// UnimplementedReviewServiceServer embeds into Server so future RPCs
// added to the interface don't break this implementation until they
// are deliberately wired up -- the same forward-compatibility shim a
// protoc-gen-go-grpc Unimplemented type provides.
type UnimplementedReviewServiceServer struct{}

func (UnimplementedReviewServiceServer) StartReview(context.Context, *StartReviewRequest) (*StartReviewResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method StartReview not implemented")
}

func (UnimplementedReviewServiceServer) StreamProgress(*StreamProgressRequest, ReviewService_StreamProgressServer) error {
	return status.Error(codes.Unimplemented, "method StreamProgress not implemented")
}

// NewServer builds a Server that drives reviews with llm.
func NewServer(cfg ServerConfig, llm llmclient.Client) *Server {
	return &Server{
		cfg:     cfg,
		llm:     llm,
		reviews: make(map[string]*reviewState),
		quit:    make(chan struct{}),
	}
}

// Start starts the gRPC server listening on cfg.ListenAddr.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("server already started")
	}

	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = lis

	s.grpcServer = grpc.NewServer(s.buildServerOptions()...)
	RegisterReviewServiceServer(s.grpcServer, s)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.InfoS(context.Background(), "grpc server listening", "addr", s.cfg.ListenAddr)
		if err := s.grpcServer.Serve(lis); err != nil {
			select {
			case <-s.quit:
			default:
				log.ErrorS(context.Background(), "grpc server error", err)
			}
		}
	}()

	s.started = true
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	close(s.quit)
	s.grpcServer.GracefulStop()
	s.wg.Wait()
	s.started = false
	return nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) buildServerOptions() []grpc.ServerOption {
	serverKeepalive := keepalive.ServerParameters{
		Time:    s.cfg.ServerPingTime,
		Timeout: s.cfg.ServerPingTimeout,
	}
	clientKeepalive := keepalive.EnforcementPolicy{
		MinTime:             s.cfg.ClientPingMinWait,
		PermitWithoutStream: s.cfg.ClientAllowPingWithoutStream,
	}

	return []grpc.ServerOption{
		grpc.KeepaliveParams(serverKeepalive),
		grpc.KeepaliveEnforcementPolicy(clientKeepalive),
		grpc.ChainUnaryInterceptor(s.loggingUnaryInterceptor),
		grpc.ChainStreamInterceptor(s.loggingStreamInterceptor),
	}
}

func (s *Server) loggingUnaryInterceptor(
	ctx context.Context, req interface{}, info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		log.WarnS(ctx, "rpc failed", err, "method", info.FullMethod, "duration", time.Since(start))
	} else {
		log.InfoS(ctx, "rpc completed", "method", info.FullMethod, "duration", time.Since(start))
	}
	return resp, err
}

func (s *Server) loggingStreamInterceptor(
	srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo,
	handler grpc.StreamHandler,
) error {
	start := time.Now()
	err := handler(srv, ss)
	if err != nil {
		log.WarnS(ss.Context(), "stream rpc failed", err, "method", info.FullMethod, "duration", time.Since(start))
	} else {
		log.InfoS(ss.Context(), "stream rpc completed", "method", info.FullMethod, "duration", time.Since(start))
	}
	return err
}

// StartReview kicks off a review run in the background and returns
// immediately with an ID; progress streams via StreamProgress.
func (s *Server) StartReview(ctx context.Context, req *StartReviewRequest) (*StartReviewResponse, error) {
	if req.RepoPath == "" && req.ExternalDiff == "" {
		return nil, status.Error(codes.InvalidArgument, "repoPath or externalDiff is required")
	}

	id := newReviewID()

	state := newReviewState()
	s.mu.Lock()
	s.reviews[id] = state
	s.mu.Unlock()

	orch := orchestrator.New(s.llm, channelObserver{state: state})
	in := orchestrator.Input{
		Diff: orchestrator.DiffSource{
			RepoPath:     req.RepoPath,
			SourceRef:    req.SourceRef,
			TargetRef:    req.TargetRef,
			ExternalDiff: req.ExternalDiff,
		},
		ProjectStandards: req.ProjectStandards,
		CustomAgents:     toCustomAgents(req.CustomAgents),
	}

	go func() {
		defer state.finish()
		if _, err := orch.Run(context.Background(), in, s.cfg.OrchestratorConfig); err != nil {
			state.append(progress.Event{
				Type:    progress.EventReviewError,
				Message: err.Error(),
				Err:     err,
			})
		}
	}()

	return &StartReviewResponse{ReviewID: id}, nil
}

// StreamProgress streams every progress event recorded for req.ReviewID
// until the review finishes.
func (s *Server) StreamProgress(req *StreamProgressRequest, stream ReviewService_StreamProgressServer) error {
	s.mu.Lock()
	state, ok := s.reviews[req.ReviewID]
	s.mu.Unlock()
	if !ok {
		return status.Errorf(codes.NotFound, "unknown review id %q", req.ReviewID)
	}

	ctx := stream.Context()
	next := 0
	for {
		events, done, notify := state.snapshot(next)
		for _, ev := range events {
			if err := stream.Send(toWireEvent(ev)); err != nil {
				return err
			}
		}
		next += len(events)

		if done {
			return stream.Send(&ProgressEvent{Done: true})
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-notify:
		}
	}
}

func toWireEvent(ev progress.Event) *ProgressEvent {
	out := &ProgressEvent{
		Type:      string(ev.Type),
		Timestamp: ev.Timestamp,
		Phase:     ev.Phase,
		Agent:     string(ev.Agent),
		Status:    string(ev.Status),
		Message:   ev.Message,
		Completed: ev.Completed,
		Total:     ev.Total,
	}
	if ev.Err != nil {
		out.Err = ev.Err.Error()
	}
	return out
}

func newReviewID() string {
	return "review-" + uuid.New().String()
}
