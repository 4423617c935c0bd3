package transport

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/corebridge/platform-core/internal/apperr"
	"github.com/corebridge/platform-core/internal/dispatcher"
	"github.com/corebridge/platform-core/internal/toolspec"
	"github.com/corebridge/platform-core/pkg/envelope"
)

// ServerInfo identifies this process to a caller's initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities mirrors the subset of the MCP handshake this server
// advertises. Resources/Prompts/Sampling are never populated — the core
// only exposes tools (spec.md §1, "deliberately out of scope").
type Capabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ToolsCapability reports whether the tool set can change mid-session.
// It never does here, so ListChanged is always false.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// InitializeParams is what a caller sends with the initialize method.
type InitializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ClientInfo      ServerInfo `json:"clientInfo"`
}

// InitializeResult answers initialize.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

// ToolInfo is one entry of a tools/list response.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ListToolsResult answers tools/list.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// CallToolParams is what a caller sends with tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult answers tools/call — the envelope content reshaped to the
// wire's "content"/"isError" fields.
type CallToolResult struct {
	Content []envelopeContent `json:"content"`
	IsError bool              `json:"isError,omitempty"`
}

type envelopeContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data string `json:"data,omitempty"`
}

// CompleteParams is what a caller sends with completion/complete — an
// argument-completion request against one tool's input schema.
type CompleteParams struct {
	ToolName string `json:"toolName"`
	Argument string `json:"argument"`
	Value    string `json:"value"`
}

// CompleteResult answers completion/complete. The core has no completion
// model of its own (spec.md §1 excludes LLM prompting), so it always
// returns an empty candidate list — present for protocol completeness,
// not for callers that actually need suggestions.
type CompleteResult struct {
	Values []string `json:"values"`
}

// SetUserTokenParams is what a caller sends with auth/setUserToken.
type SetUserTokenParams struct {
	Token string `json:"token"`
}

// SetUserTokenResult answers auth/setUserToken. An empty token clears the
// user credential, otherwise Cleared is always false.
type SetUserTokenResult struct {
	Cleared bool `json:"cleared"`
}

const protocolVersion = "2024-11-05"

// dispatch is the shared method-handling logic both the stdio and HTTP+SSE
// surfaces drive: parse params, call the dispatcher, shape a Response.
// Framing (line-delimited stdio vs POST/SSE) is the only thing that differs
// between the two transports.
func dispatch(ctx context.Context, d *dispatcher.Dispatcher, casing toolspec.Casing, info ServerInfo, req Request) *Response {
	switch req.Method {
	case MethodInitialize:
		return initializeResponse(req.ID, info)
	case MethodToolsList:
		return toolsListResponse(req.ID, d, casing)
	case MethodToolsCall:
		return toolsCallResponse(ctx, req.ID, d, req.Params)
	case MethodCompletionComplete:
		result, err := resultResponse(req.ID, CompleteResult{Values: []string{}})
		if err != nil {
			return errorResponse(req.ID, ErrCodeInternalError, err.Error())
		}
		return result
	case MethodAuthSetUserToken:
		return setUserTokenResponse(req.ID, d, req.Params)
	default:
		return errorResponse(req.ID, ErrCodeMethodNotFound, "method not found: "+req.Method)
	}
}

func initializeResponse(id any, info ServerInfo) *Response {
	result, err := resultResponse(id, InitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    Capabilities{Tools: &ToolsCapability{}},
		ServerInfo:      info,
	})
	if err != nil {
		return errorResponse(id, ErrCodeInternalError, err.Error())
	}
	return result
}

func toolsListResponse(id any, d *dispatcher.Dispatcher, casing toolspec.Casing) *Response {
	summaries, err := d.ListTools(casing)
	if err != nil {
		return errorResponse(id, ErrCodeInternalError, err.Error())
	}
	tools := make([]ToolInfo, 0, len(summaries))
	for _, s := range summaries {
		tools = append(tools, ToolInfo{Name: s.Name, Description: s.Description, InputSchema: s.InputSchema})
	}
	result, err := resultResponse(id, ListToolsResult{Tools: tools})
	if err != nil {
		return errorResponse(id, ErrCodeInternalError, err.Error())
	}
	return result
}

func toolsCallResponse(ctx context.Context, id any, d *dispatcher.Dispatcher, raw json.RawMessage) *Response {
	var params CallToolParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return errorResponse(id, ErrCodeInvalidParams, "malformed tools/call params: "+err.Error())
	}

	var args map[string]any
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return errorResponse(id, ErrCodeInvalidParams, "malformed tool arguments: "+err.Error())
		}
	}

	env, err := d.Invoke(ctx, params.Name, args)
	if err != nil {
		return errorResponse(id, codeFor(err), err.Error())
	}

	result, err := resultResponse(id, callToolResultOf(env))
	if err != nil {
		return errorResponse(id, ErrCodeInternalError, err.Error())
	}
	return result
}

// setUserTokenResponse answers auth/setUserToken, the wire exposure of
// Dispatcher.SetUserToken (spec.md §4.1's third op): an empty token clears
// the caller's user credential, a malformed one is rejected with
// ErrCodeInvalidParams via apperr.InvalidTokenFormat.
func setUserTokenResponse(id any, d *dispatcher.Dispatcher, raw json.RawMessage) *Response {
	var params SetUserTokenParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return errorResponse(id, ErrCodeInvalidParams, "malformed auth/setUserToken params: "+err.Error())
	}

	if err := d.SetUserToken(envelope.TokenUser, params.Token); err != nil {
		return errorResponse(id, codeFor(err), err.Error())
	}

	result, err := resultResponse(id, SetUserTokenResult{Cleared: params.Token == ""})
	if err != nil {
		return errorResponse(id, ErrCodeInternalError, err.Error())
	}
	return result
}

func callToolResultOf(env envelope.Envelope) CallToolResult {
	content := make([]envelopeContent, 0, len(env.Content))
	for _, c := range env.Content {
		content = append(content, envelopeContent{Type: string(c.Type), Text: c.Text, Data: c.Data})
	}
	return CallToolResult{Content: content, IsError: env.IsError}
}

// codeFor maps a dispatcher/apperr error to the JSON-RPC error code space
// spec.md §6 names, so transports never string-match errors.
func codeFor(err error) int {
	var rateLimited *apperr.RateLimitExceededErr
	if errors.As(err, &rateLimited) {
		return ErrCodeRateLimited
	}
	if e, ok := apperr.As(err); ok {
		switch e.Code {
		case "ToolNotFound":
			return ErrCodeToolNotFound
		case "InvalidParams", "SchemaValidationFailure", "InvalidName", "InvalidTokenFormat":
			return ErrCodeInvalidParams
		}
	}
	return ErrCodeInternalError
}
