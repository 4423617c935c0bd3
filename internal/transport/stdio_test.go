package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/corebridge/platform-core/internal/dispatcher"
	"github.com/corebridge/platform-core/internal/toolspec"
	"github.com/corebridge/platform-core/pkg/envelope"
)

func testDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	reg := toolspec.NewRegistry()
	err := reg.Register(toolspec.Descriptor{
		Name:      "demo.echo",
		Provider:  "demo",
		TokenKind: envelope.TokenApp,
		Handler: func(ctx context.Context, client envelope.TransportClient, params map[string]any, inv envelope.Invocation) (envelope.Envelope, error) {
			return envelope.Text("ok"), nil
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return dispatcher.New(reg, dispatcher.Policy{TokenMode: dispatcher.TokenModeAuto}, nil)
}

func readResponses(t *testing.T, out *bytes.Buffer) []Response {
	t.Helper()
	var responses []Response
	dec := json.NewDecoder(strings.NewReader(out.String()))
	for {
		var r Response
		if err := dec.Decode(&r); err != nil {
			break
		}
		responses = append(responses, r)
	}
	return responses
}

func TestStdioServer_Initialize(t *testing.T) {
	s := NewStdioServer(testDispatcher(t), toolspec.CasingDotted, ServerInfo{Name: "corebridge", Version: "test"}, nil)

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n")
	var out bytes.Buffer
	if err := s.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	responses := readResponses(t, &out)
	if len(responses) != 1 || responses[0].Error != nil {
		t.Fatalf("got %+v", responses)
	}
}

func TestStdioServer_ToolsListAndCall(t *testing.T) {
	s := NewStdioServer(testDispatcher(t), toolspec.CasingDotted, ServerInfo{Name: "corebridge"}, nil)

	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"demo.echo","arguments":{}}}` + "\n",
	)
	var out bytes.Buffer
	if err := s.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	responses := readResponses(t, &out)
	if len(responses) != 2 {
		t.Fatalf("got %d responses, want 2", len(responses))
	}
	var list ListToolsResult
	if err := json.Unmarshal(responses[0].Result, &list); err != nil {
		t.Fatalf("decode tools/list result: %v", err)
	}
	if len(list.Tools) != 1 || list.Tools[0].Name != "demo.echo" {
		t.Fatalf("got %+v", list)
	}

	var call CallToolResult
	if err := json.Unmarshal(responses[1].Result, &call); err != nil {
		t.Fatalf("decode tools/call result: %v", err)
	}
	if call.IsError || len(call.Content) != 1 || call.Content[0].Text != "ok" {
		t.Fatalf("got %+v", call)
	}
}

func TestStdioServer_UnknownToolMapsToToolNotFoundCode(t *testing.T) {
	s := NewStdioServer(testDispatcher(t), toolspec.CasingDotted, ServerInfo{}, nil)

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"demo.missing"}}` + "\n")
	var out bytes.Buffer
	s.Serve(context.Background(), in, &out)

	responses := readResponses(t, &out)
	if len(responses) != 1 || responses[0].Error == nil || responses[0].Error.Code != ErrCodeToolNotFound {
		t.Fatalf("got %+v", responses)
	}
}

func TestStdioServer_MalformedLineGetsParseError(t *testing.T) {
	s := NewStdioServer(testDispatcher(t), toolspec.CasingDotted, ServerInfo{}, nil)

	in := strings.NewReader(`not json` + "\n")
	var out bytes.Buffer
	s.Serve(context.Background(), in, &out)

	responses := readResponses(t, &out)
	if len(responses) != 1 || responses[0].Error == nil || responses[0].Error.Code != ErrCodeParseError {
		t.Fatalf("got %+v", responses)
	}
}

func TestStdioServer_SetUserToken(t *testing.T) {
	s := NewStdioServer(testDispatcher(t), toolspec.CasingDotted, ServerInfo{}, nil)

	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"auth/setUserToken","params":{"token":"short"}}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"auth/setUserToken","params":{"token":"a-valid-token"}}` + "\n",
	)
	var out bytes.Buffer
	if err := s.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	responses := readResponses(t, &out)
	if len(responses) != 2 {
		t.Fatalf("got %d responses, want 2", len(responses))
	}
	if responses[0].Error == nil || responses[0].Error.Code != ErrCodeInvalidParams {
		t.Fatalf("expected InvalidTokenFormat mapped to ErrCodeInvalidParams, got %+v", responses[0])
	}
	if responses[1].Error != nil {
		t.Fatalf("expected a well-formed token to succeed, got %+v", responses[1])
	}
}

func TestStdioServer_UnknownMethod(t *testing.T) {
	s := NewStdioServer(testDispatcher(t), toolspec.CasingDotted, ServerInfo{}, nil)

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"not/a/method"}` + "\n")
	var out bytes.Buffer
	s.Serve(context.Background(), in, &out)

	responses := readResponses(t, &out)
	if len(responses) != 1 || responses[0].Error == nil || responses[0].Error.Code != ErrCodeMethodNotFound {
		t.Fatalf("got %+v", responses)
	}
}
