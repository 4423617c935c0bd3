// Package envelope defines the canonical return shape of a tool handler and
// the handler contract that external tool packages implement against. This
// is the one public seam between the execution substrate and the hundreds
// of per-endpoint tool implementations that are deliberately out of scope
// for this repository (see spec.md §1).
package envelope

import "context"

// ContentType identifies the kind of content carried in an envelope.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
)

// Content is one piece of a handler's output.
type Content struct {
	Type ContentType `json:"type"`
	Text string      `json:"text,omitempty"`
	Data string      `json:"data,omitempty"`
}

// Envelope is the canonical shape returned by every tool handler, success or
// failure. Handler errors are captured into an error envelope, never
// propagated as uncaught faults (spec.md §4.1, §7).
type Envelope struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text builds a successful single-text-block envelope.
func Text(s string) Envelope {
	return Envelope{Content: []Content{{Type: ContentText, Text: s}}}
}

// Errorf builds an error envelope from a message.
func Errorf(msg string) Envelope {
	return Envelope{IsError: true, Content: []Content{{Type: ContentText, Text: msg}}}
}

// TokenKind selects which credential the dispatcher must have available to
// invoke a tool.
type TokenKind string

const (
	TokenApp    TokenKind = "app"
	TokenUser   TokenKind = "user"
	TokenTenant TokenKind = "tenant"
)

// Invocation carries the resolved context a handler needs beyond its raw
// parameters: the token selected for this call and the descriptor it was
// dispatched from.
type Invocation struct {
	UserToken string
	ToolName  string
	TokenKind TokenKind
}

// TransportClient is the minimal outbound capability a handler is given; it
// is satisfied by internal/httpcore.Client so handlers never see the raw
// *http.Client, the rate limiter, or credentials directly.
type TransportClient interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

// Handler is the uniform shape every tool, built-in or external, is
// dispatched through.
type Handler func(ctx context.Context, client TransportClient, params map[string]any, inv Invocation) (Envelope, error)
