package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Stub is a deterministic in-memory Client used by tests that exercise
// the LLM-dependent code paths (selector fallback, dedup semantic
// check, validator challenge rounds) without spawning a subprocess.
//
// Responses are consumed in FIFO order from one queue shared by
// Chat/ChatJSON and MultiTurn sessions, so a test can script an exact
// sequence of replies regardless of which method reaches for the next
// one.
type Stub struct {
	mu        sync.Mutex
	responses []StubResponse
	calls     []StubCall
	tokens    int64

	// Err, if set, is returned by every call instead of consuming the
	// response queue.
	Err error

	// TokensPerCall is the token count credited to each successful
	// call; defaults to 100 when the Stub is built with NewStub.
	TokensPerCall int64
}

// StubResponse is one scripted reply.
type StubResponse struct {
	Text string
	Err  error
}

// StubCall records one invocation for test assertions.
type StubCall struct {
	SystemPrompt string
	Prompt       string
}

// NewStub builds a Stub that replies with the given texts, in order.
func NewStub(replies ...string) *Stub {
	s := &Stub{TokensPerCall: 100}
	for _, r := range replies {
		s.responses = append(s.responses, StubResponse{Text: r})
	}
	return s
}

// Push appends another scripted reply to the queue.
func (s *Stub) Push(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, StubResponse{Text: text})
}

// PushJSON appends a reply by marshaling v to JSON.
func (s *Stub) PushJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("llmclient: stub PushJSON: %v", err))
	}
	s.Push(string(b))
}

// Calls returns every recorded invocation, in order.
func (s *Stub) Calls() []StubCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StubCall, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Stub) next(systemPrompt, prompt string) (StubResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, StubCall{SystemPrompt: systemPrompt, Prompt: prompt})

	if s.Err != nil {
		return StubResponse{}, s.Err
	}
	if len(s.responses) == 0 {
		return StubResponse{}, fmt.Errorf("llmclient: stub exhausted, no response queued")
	}

	r := s.responses[0]
	s.responses = s.responses[1:]
	if r.Err == nil {
		s.tokens += s.TokensPerCall
	}
	return r, r.Err
}

// TokensUsed implements Client.
func (s *Stub) TokensUsed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// Chat implements Client.
func (s *Stub) Chat(_ context.Context, systemPrompt, prompt string) (string, error) {
	r, err := s.next(systemPrompt, prompt)
	if err != nil {
		return "", err
	}
	return r.Text, nil
}

// ChatJSON implements Client.
func (s *Stub) ChatJSON(
	ctx context.Context, systemPrompt, prompt string, out interface{},
) error {

	text, err := s.Chat(ctx, systemPrompt, prompt)
	if err != nil {
		return err
	}
	return unmarshalJSONReply(text, out)
}

// MultiTurn implements Client, returning a session backed by the same
// scripted queue.
func (s *Stub) MultiTurn(_ context.Context, _ string) (Session, error) {
	return &stubSession{stub: s}, nil
}

type stubSession struct {
	stub   *Stub
	closed bool
}

func (s *stubSession) Send(_ context.Context, prompt string) (string, error) {
	r, err := s.stub.next("", prompt)
	if err != nil {
		return "", err
	}
	return r.Text, nil
}

func (s *stubSession) SendJSON(
	ctx context.Context, prompt string, out interface{},
) error {

	text, err := s.Send(ctx, prompt)
	if err != nil {
		return err
	}
	return unmarshalJSONReply(text, out)
}

func (s *stubSession) Close() error {
	s.closed = true
	return nil
}
