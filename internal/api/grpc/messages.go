// Package revsentryrpc is the control-plane surface: a StartReview
// unary call plus a StreamProgress server-streaming call, served over
// real grpc-go transport. No protoc run produced generated stubs, so
// the wire messages below are plain Go structs carried by a
// hand-registered JSON codec (see codec.go) instead of
// protobuf-generated types, the same request/response/service-method
// shape as a CreateReview-plus-interceptor-chain RPC service, minus
// the generated marshaling.
package revsentryrpc

import (
	"time"

	"github.com/roasbeef/revsentry/internal/orchestrator"
)

// StartReviewRequest carries everything orchestrator.Input needs.
type StartReviewRequest struct {
	RepoPath         string                      `json:"repoPath,omitempty"`
	SourceRef        string                      `json:"sourceRef,omitempty"`
	TargetRef        string                      `json:"targetRef,omitempty"`
	ExternalDiff     string                      `json:"externalDiff,omitempty"`
	ProjectStandards string                      `json:"projectStandards,omitempty"`
	CustomAgents     []StartReviewRequestCustom  `json:"customAgents,omitempty"`
}

// StartReviewRequestCustom mirrors orchestrator.CustomAgent over the
// wire.
type StartReviewRequestCustom struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"systemPrompt"`
	FilePattern  string `json:"filePattern,omitempty"`
}

// StartReviewResponse acknowledges a started review with the ID
// StreamProgress and later polling will reference.
type StartReviewResponse struct {
	ReviewID string `json:"reviewId"`
}

// ProgressEvent is the wire form of progress.Event streamed back to
// the caller.
type ProgressEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Phase     string    `json:"phase,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
	Err       string    `json:"err,omitempty"`
	Completed int       `json:"completed,omitempty"`
	Total     int       `json:"total,omitempty"`

	// Done marks the terminal event of a stream: the review finished
	// (successfully or not) and no further events will follow.
	Done bool `json:"done,omitempty"`
}

// StreamProgressRequest names the review whose events to stream.
type StreamProgressRequest struct {
	ReviewID string `json:"reviewId"`
}

func toCustomAgents(in []StartReviewRequestCustom) []orchestrator.CustomAgent {
	out := make([]orchestrator.CustomAgent, len(in))
	for i, c := range in {
		out[i] = orchestrator.CustomAgent{
			Name:         c.Name,
			SystemPrompt: c.SystemPrompt,
			FilePattern:  c.FilePattern,
		}
	}
	return out
}
