// ABOUTME: AI backend contract: bounded conversation in, completion text out
// ABOUTME: Failure taxonomy is sentinel errors checked with errors.Is

package backend

import (
	"context"
	"errors"
)

// ErrRateLimited indicates the backend rejected the call for rate reasons.
var ErrRateLimited = errors.New("backend rate limited")

// ErrContextTooLarge indicates the assembled context exceeded backend limits.
// Terminal for the turn; the orchestrator does not retry.
var ErrContextTooLarge = errors.New("context too large")

// ErrUnavailable indicates the backend could not be reached or errored out.
var ErrUnavailable = errors.New("backend unavailable")

// Role of a conversation turn as the backend sees it.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Media carries raw attachment bytes with their declared type.
type Media struct {
	MimeType string
	Data     []byte
}

// Block is one content element of a backend turn. Exactly one field is set.
type Block struct {
	Text     string
	Image    *Media
	Document *Media
}

// Turn is a single conversation contribution in backend order.
type Turn struct {
	Role   Role
	Blocks []Block
}

// Request is a fully assembled, bounded conversation.
type Request struct {
	SystemPrompt string
	// Temperature in [0,1]; nil leaves the backend default in place.
	Temperature *float64
	Turns       []Turn
}

// Response is the backend's completion.
type Response struct {
	Text         string
	StopReason   string
	InputTokens  int64
	OutputTokens int64
}

// Backend performs one completion call. Implementations map their transport
// failures onto the sentinel errors above.
type Backend interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
