// Package llmclient wraps the Claude agent SDK behind a small interface
// the rest of the pipeline depends on, so every component that needs to
// talk to a reviewer model (selector fallback, dedup semantic check,
// validator challenge rounds, fix verification) can be exercised with a
// deterministic fake in tests.
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	claudeagent "github.com/roasbeef/claude-agent-sdk-go"
)

// Client is the collaborator contract every pipeline component talks to.
// Implementations must be safe for concurrent use by independent
// sessions, though a single Client value is typically one conversation.
type Client interface {
	// Chat sends a single prompt under the given system prompt and
	// returns the model's raw text reply.
	Chat(ctx context.Context, systemPrompt, prompt string) (string, error)

	// ChatJSON sends a single prompt and unmarshals the reply into out.
	// Implementations should instruct the model to reply with JSON only
	// and tolerate a reply wrapped in a fenced code block.
	ChatJSON(ctx context.Context, systemPrompt, prompt string, out interface{}) error

	// MultiTurn starts a session that can be continued with further
	// calls to Session.Send, used by the validator's multi-round
	// challenge protocol.
	MultiTurn(ctx context.Context, systemPrompt string) (Session, error)

	// TokensUsed returns the cumulative input+output token count
	// consumed by every call made through this Client so far,
	// including calls made on Sessions it produced via MultiTurn.
	TokensUsed() int64
}

// Session is one ongoing multi-turn conversation.
type Session interface {
	// Send submits a prompt and returns the reply text.
	Send(ctx context.Context, prompt string) (string, error)

	// SendJSON submits a prompt and unmarshals the reply into out.
	SendJSON(ctx context.Context, prompt string, out interface{}) error

	// Close releases the underlying process/connection.
	Close() error
}

// Config configures an SDKClient.
type Config struct {
	CLIPath                         string
	Model                           string
	WorkDir                         string
	MaxTurns                        int
	PermissionMode                  claudeagent.PermissionMode
	AllowDangerouslySkipPermissions bool
	NoSessionPersistence            bool
	ConfigDir                       string
	Timeout                         time.Duration
}

// DefaultConfig returns sane defaults for the SDK-backed client.
func DefaultConfig() Config {
	return Config{
		CLIPath:              "claude",
		Model:                "claude-sonnet-4-5-20250929",
		Timeout:              5 * time.Minute,
		NoSessionPersistence: true,
	}
}

// SDKClient is the production Client, backed by claude-agent-sdk-go.
type SDKClient struct {
	cfg    Config
	tokens atomic.Int64
}

// NewSDKClient builds a Client that spawns a claude CLI subprocess per
// call via the agent SDK.
func NewSDKClient(cfg Config) *SDKClient {
	if cfg.Model == "" {
		cfg = DefaultConfig()
	}
	return &SDKClient{cfg: cfg}
}

func (c *SDKClient) options(systemPrompt string) []claudeagent.Option {
	opts := []claudeagent.Option{claudeagent.WithModel(c.cfg.Model)}

	if c.cfg.CLIPath != "" && c.cfg.CLIPath != "claude" {
		opts = append(opts, claudeagent.WithCLIPath(c.cfg.CLIPath))
	}
	if c.cfg.WorkDir != "" {
		opts = append(opts, claudeagent.WithCwd(c.cfg.WorkDir))
	}
	if systemPrompt != "" {
		opts = append(opts, claudeagent.WithSystemPrompt(systemPrompt))
	}
	if c.cfg.MaxTurns > 0 {
		opts = append(opts, claudeagent.WithMaxTurns(c.cfg.MaxTurns))
	}
	if c.cfg.PermissionMode != "" {
		opts = append(opts, claudeagent.WithPermissionMode(c.cfg.PermissionMode))
	}
	if c.cfg.AllowDangerouslySkipPermissions {
		opts = append(opts, claudeagent.WithAllowDangerouslySkipPermissions(true))
	}
	if c.cfg.NoSessionPersistence {
		opts = append(opts, claudeagent.WithNoSessionPersistence())
	}
	if c.cfg.ConfigDir != "" {
		opts = append(opts, claudeagent.WithConfigDir(c.cfg.ConfigDir))
	}

	return opts
}

// Chat implements Client.
func (c *SDKClient) Chat(
	ctx context.Context, systemPrompt, prompt string,
) (string, error) {

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	client, err := claudeagent.NewClient(c.options(systemPrompt)...)
	if err != nil {
		return "", fmt.Errorf("creating claude client: %w", err)
	}
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return "", fmt.Errorf("connecting to claude CLI: %w", err)
	}

	var (
		result        string
		lastAssistant claudeagent.AssistantMessage
	)

	for msg := range client.Query(ctx, prompt) {
		switch m := msg.(type) {
		case claudeagent.AssistantMessage:
			lastAssistant = m
		case claudeagent.ResultMessage:
			if m.IsError {
				errMsg := "unknown error"
				if len(m.Errors) > 0 {
					errMsg = m.Errors[0]
				}
				return "", fmt.Errorf("agent reported error: %s", errMsg)
			}
			result = m.Result
			c.tokens.Add(usageTokens(m.Usage))
		}
	}

	if result == "" && lastAssistant.MessageType() != "" {
		result = lastAssistant.ContentText()
	}

	return result, nil
}

// TokensUsed implements Client.
func (c *SDKClient) TokensUsed() int64 {
	return c.tokens.Load()
}

// usageTokens sums input and output tokens from an SDK usage record,
// tolerating a nil record for messages that didn't report one.
func usageTokens(u *claudeagent.NonNullableUsage) int64 {
	if u == nil {
		return 0
	}
	return int64(u.InputTokens) + int64(u.OutputTokens)
}

// ChatJSON implements Client.
func (c *SDKClient) ChatJSON(
	ctx context.Context, systemPrompt, prompt string, out interface{},
) error {

	reply, err := c.Chat(ctx, systemPrompt+jsonOnlySuffix, prompt)
	if err != nil {
		return err
	}
	return unmarshalJSONReply(reply, out)
}

// MultiTurn implements Client.
func (c *SDKClient) MultiTurn(
	ctx context.Context, systemPrompt string,
) (Session, error) {

	client, err := claudeagent.NewClient(c.options(systemPrompt)...)
	if err != nil {
		return nil, fmt.Errorf("creating claude client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to claude CLI: %w", err)
	}

	stream, err := client.Stream(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("opening stream: %w", err)
	}

	return &sdkSession{
		client:  client,
		stream:  stream,
		timeout: c.cfg.Timeout,
		tokens:  &c.tokens,
	}, nil
}

type sdkSession struct {
	client  *claudeagent.Client
	stream  *claudeagent.Stream
	timeout time.Duration
	tokens  *atomic.Int64
}

func (s *sdkSession) Send(ctx context.Context, prompt string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.stream.Send(ctx, prompt); err != nil {
		return "", fmt.Errorf("sending to stream: %w", err)
	}

	var (
		result        string
		lastAssistant claudeagent.AssistantMessage
		done          bool
	)

	for msg := range s.stream.Messages() {
		switch m := msg.(type) {
		case claudeagent.AssistantMessage:
			lastAssistant = m
		case claudeagent.ResultMessage:
			if m.IsError {
				errMsg := "unknown error"
				if len(m.Errors) > 0 {
					errMsg = m.Errors[0]
				}
				return "", fmt.Errorf("agent reported error: %s", errMsg)
			}
			result = m.Result
			done = true
			s.tokens.Add(usageTokens(m.Usage))
		}
		if done {
			break
		}
	}

	if result == "" && lastAssistant.MessageType() != "" {
		result = lastAssistant.ContentText()
	}

	return result, nil
}

func (s *sdkSession) SendJSON(
	ctx context.Context, prompt string, out interface{},
) error {

	reply, err := s.Send(ctx, prompt+jsonOnlySuffix)
	if err != nil {
		return err
	}
	return unmarshalJSONReply(reply, out)
}

func (s *sdkSession) Close() error {
	if s.stream != nil {
		s.stream.Close()
	}
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

const jsonOnlySuffix = "\n\nReply with a single JSON object and nothing else."

// unmarshalJSONReply tolerates a reply fenced in a ```json code block, a
// common model habit this pipeline must not choke on.
func unmarshalJSONReply(reply string, out interface{}) error {
	raw := stripFence(reply)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("unmarshaling model reply as JSON: %w", err)
	}
	return nil
}

func stripFence(s string) string {
	trimmed := trimSpaceASCII(s)
	if len(trimmed) < 3 || trimmed[:3] != "```" {
		return trimmed
	}

	lines := splitLines(trimmed)
	if len(lines) < 2 {
		return trimmed
	}
	lines = lines[1:]
	if len(lines) > 0 && lines[len(lines)-1] == "```" {
		lines = lines[:len(lines)-1]
	}
	return joinLines(lines)
}

func trimSpaceASCII(s string) string {
	start, end := 0, len(s)
	for start < end && isSpaceByte(s[start]) {
		start++
	}
	for end > start && isSpaceByte(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
