package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/corebridge/platform-core/internal/toolspec"
	"github.com/corebridge/platform-core/pkg/envelope"
)

type fakeClient struct{}

func (fakeClient) Do(ctx context.Context, method, path string, body, out any) error { return nil }

func echoHandler(ctx context.Context, c envelope.TransportClient, params map[string]any, inv envelope.Invocation) (envelope.Envelope, error) {
	return envelope.Text("ok"), nil
}

func failingHandler(ctx context.Context, c envelope.TransportClient, params map[string]any, inv envelope.Invocation) (envelope.Envelope, error) {
	return envelope.Envelope{}, errors.New("boom")
}

func panickingHandler(ctx context.Context, c envelope.TransportClient, params map[string]any, inv envelope.Invocation) (envelope.Envelope, error) {
	panic("unexpected")
}

func newTestRegistry(t *testing.T) *toolspec.Registry {
	t.Helper()
	r := toolspec.NewRegistry()
	if err := r.Register(toolspec.Descriptor{Name: "github.create_issue", Handler: echoHandler}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(toolspec.Descriptor{Name: "internal.wipe_db", Handler: failingHandler}); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestInvoke_Success(t *testing.T) {
	d := New(newTestRegistry(t), Policy{}, fakeClient{})
	env, err := d.Invoke(context.Background(), "github.create_issue", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.IsError || env.Content[0].Text != "ok" {
		t.Fatalf("got %+v", env)
	}
}

func TestInvoke_DeniedByPolicy(t *testing.T) {
	d := New(newTestRegistry(t), Policy{Deny: []string{"internal.*"}}, fakeClient{})
	_, err := d.Invoke(context.Background(), "internal.wipe_db", nil)
	if err == nil {
		t.Fatal("expected a denied tool to error rather than run")
	}
}

func TestInvoke_HandlerError_BecomesErrorEnvelope(t *testing.T) {
	r := toolspec.NewRegistry()
	r.Register(toolspec.Descriptor{Name: "x.fail", Handler: failingHandler})
	d := New(r, Policy{}, fakeClient{})

	env, err := d.Invoke(context.Background(), "x.fail", nil)
	if err != nil {
		t.Fatalf("a handler error must not propagate as an uncaught Go error, got %v", err)
	}
	if !env.IsError {
		t.Fatal("expected an error envelope")
	}
}

func TestInvoke_HandlerPanic_BecomesErrorEnvelope(t *testing.T) {
	r := toolspec.NewRegistry()
	r.Register(toolspec.Descriptor{Name: "x.panic", Handler: panickingHandler})
	d := New(r, Policy{}, fakeClient{})

	env, err := d.Invoke(context.Background(), "x.panic", nil)
	if err != nil {
		t.Fatalf("a handler panic must not propagate as an uncaught Go error, got %v", err)
	}
	if !env.IsError {
		t.Fatal("expected an error envelope for a recovered panic")
	}
}

func TestInvoke_UnknownTool(t *testing.T) {
	d := New(newTestRegistry(t), Policy{}, fakeClient{})
	_, err := d.Invoke(context.Background(), "does.not_exist", nil)
	if err == nil {
		t.Fatal("expected ToolNotFound")
	}
}

func TestInvoke_SchemaValidation(t *testing.T) {
	r := toolspec.NewRegistry()
	r.Register(toolspec.Descriptor{
		Name:    "x.typed",
		Handler: echoHandler,
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"id"},
			"properties": map[string]any{
				"id": map[string]any{"type": "string"},
			},
		},
	})
	d := New(r, Policy{}, fakeClient{})

	if _, err := d.Invoke(context.Background(), "x.typed", map[string]any{}); err == nil {
		t.Fatal("expected a schema validation failure for missing required field")
	}
	if _, err := d.Invoke(context.Background(), "x.typed", map[string]any{"id": "abc"}); err != nil {
		t.Fatalf("unexpected error with valid params: %v", err)
	}
}

func TestInvoke_TokenKindGating(t *testing.T) {
	r := toolspec.NewRegistry()
	r.Register(toolspec.Descriptor{Name: "x.user_scoped", Handler: echoHandler, TokenKind: envelope.TokenUser})
	d := New(r, Policy{TokenMode: TokenModeUserOnly}, fakeClient{})

	if _, err := d.Invoke(context.Background(), "x.user_scoped", nil); err == nil {
		t.Fatal("expected AuthUnavailable with no user token set")
	}

	if err := d.SetUserToken(envelope.TokenUser, "a-valid-token"); err != nil {
		t.Fatalf("unexpected error setting a well-formed token: %v", err)
	}
	if _, err := d.Invoke(context.Background(), "x.user_scoped", nil); err != nil {
		t.Fatalf("unexpected error once a user token is set: %v", err)
	}
}

func TestSetUserToken_RejectsMalformedTokens(t *testing.T) {
	r := toolspec.NewRegistry()
	d := New(r, Policy{}, fakeClient{})

	if err := d.SetUserToken(envelope.TokenUser, "short"); err == nil {
		t.Fatal("expected InvalidTokenFormat for a too-short token")
	}
	if err := d.SetUserToken(envelope.TokenUser, "has a space in it"); err == nil {
		t.Fatal("expected InvalidTokenFormat for a token containing whitespace")
	}
	if err := d.SetUserToken(envelope.TokenUser, "has\ncontrol\tchars"); err == nil {
		t.Fatal("expected InvalidTokenFormat for a token containing control characters")
	}
	if err := d.SetUserToken(envelope.TokenUser, ""); err != nil {
		t.Fatalf("expected clearing with an empty token to succeed, got %v", err)
	}
}

func TestListTools_RespectsPolicyAndCasing(t *testing.T) {
	d := New(newTestRegistry(t), Policy{Deny: []string{"internal.*"}}, fakeClient{})
	summaries, err := d.ListTools(toolspec.CasingCamel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Name != "githubCreateIssue" {
		t.Fatalf("got %+v", summaries)
	}
}

func TestPolicy_DenyWinsOverAllow(t *testing.T) {
	reg := toolspec.NewRegistry()
	reg.Register(toolspec.Descriptor{Name: "a.b", Handler: echoHandler})
	p := Policy{Allow: []string{"a.*"}, Deny: []string{"a.b"}}
	if p.resolve(reg, "a.b") {
		t.Fatal("deny must win over an overlapping allow")
	}
}

func TestPolicy_ProviderOverride(t *testing.T) {
	reg := toolspec.NewRegistry()
	reg.Register(toolspec.Descriptor{Name: "a.b", Handler: echoHandler})
	p := Policy{
		Deny:       []string{"a.*"},
		ByProvider: map[string]ProviderOverride{"a": {Allow: []string{"a.b"}}},
	}
	if p.resolve(reg, "a.b") {
		t.Fatal("global deny applies before a provider override is consulted")
	}
}

func TestUse_WrapsAroundExistingMiddleware(t *testing.T) {
	d := New(newTestRegistry(t), Policy{}, fakeClient{})

	var order []string
	outer := func(next InvokeFunc) InvokeFunc {
		return func(ctx context.Context, name string, params map[string]any) (envelope.Envelope, error) {
			order = append(order, "outer-before")
			env, err := next(ctx, name, params)
			order = append(order, "outer-after")
			return env, err
		}
	}
	inner := func(next InvokeFunc) InvokeFunc {
		return func(ctx context.Context, name string, params map[string]any) (envelope.Envelope, error) {
			order = append(order, "inner-before")
			env, err := next(ctx, name, params)
			order = append(order, "inner-after")
			return env, err
		}
	}

	// Registered in this order, inner should run first (closest to the
	// core dispatch) and outer last, matching grpc.ChainUnaryInterceptor's
	// ordering: the most recently installed middleware wraps everything
	// registered before it.
	d.Use(inner)
	d.Use(outer)

	if _, err := d.Invoke(context.Background(), "github.create_issue", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"outer-before", "inner-before", "inner-after", "outer-after"}
	if len(order) != len(want) {
		t.Fatalf("got call order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got call order %v, want %v", order, want)
		}
	}
}

func TestUse_CanShortCircuitWithoutCallingNext(t *testing.T) {
	d := New(newTestRegistry(t), Policy{}, fakeClient{})
	d.Use(func(next InvokeFunc) InvokeFunc {
		return func(ctx context.Context, name string, params map[string]any) (envelope.Envelope, error) {
			return envelope.Errorf("blocked"), nil
		}
	})

	env, err := d.Invoke(context.Background(), "github.create_issue", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !env.IsError {
		t.Fatal("expected the short-circuiting middleware's error envelope, got the handler's result")
	}
}
