package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/corebridge/platform-core/internal/apperr"
	"github.com/corebridge/platform-core/internal/toolspec"
	"github.com/corebridge/platform-core/pkg/envelope"
)

// InvokeFunc is the shape of Invoke, factored out so Middleware can wrap it.
type InvokeFunc func(ctx context.Context, name string, params map[string]any) (envelope.Envelope, error)

// Middleware wraps an InvokeFunc with a cross-cutting concern — metrics,
// tracing, logging — without this package importing internal/observability
// directly. Grounded on the teacher's gateway.loggingInterceptor/
// auth.UnaryInterceptor gRPC interceptor chain (chained around a single
// call, same ctx/error shape in and out), generalized from gRPC's
// interceptor signature to Invoke's own.
type Middleware func(next InvokeFunc) InvokeFunc

// ToolSummary is what listTools() returns per tool — the wire-cased name
// plus enough metadata for a caller to build a tool-calling prompt.
type ToolSummary struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Dispatcher is the single entry point spec.md §4.1 names: listTools,
// invoke, setUserToken. One Dispatcher instance is scoped to one caller
// (its Policy and token set); internal/transport constructs a fresh one per
// session.
type Dispatcher struct {
	registry *toolspec.Registry
	policy   Policy
	client   envelope.TransportClient

	mu     sync.RWMutex
	tokens map[envelope.TokenKind]string

	schemaMu sync.Mutex
	schemas  map[string]*jsonschema.Schema

	invoke InvokeFunc
}

// Use installs mw around every subsequent Invoke call, chaining it outside
// whatever middleware is already installed (last one registered runs
// outermost, matching grpc.ChainUnaryInterceptor's ordering).
func (d *Dispatcher) Use(mw Middleware) {
	d.invoke = mw(d.invoke)
}

// New builds a Dispatcher bound to reg and scoped by policy. client is the
// internal/httpcore.Client handlers use for outbound calls.
func New(reg *toolspec.Registry, policy Policy, client envelope.TransportClient) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		policy:   policy,
		client:   client,
		tokens:   make(map[envelope.TokenKind]string),
		schemas:  make(map[string]*jsonschema.Schema),
	}
	d.invoke = d.invokeCore
	return d
}

// SetUserToken installs the per-session credential of the given kind. A
// dispatcher with no TokenUser/TokenTenant token set can still invoke tools
// declared TokenApp (spec.md §3, §4.4). An empty token clears kind; a
// non-empty token that fails validateTokenFormat is rejected with
// apperr.InvalidTokenFormat, per spec.md §4.1's setUserToken contract.
func (d *Dispatcher) SetUserToken(kind envelope.TokenKind, token string) error {
	if token == "" {
		d.mu.Lock()
		delete(d.tokens, kind)
		d.mu.Unlock()
		return nil
	}
	if err := validateTokenFormat(token); err != nil {
		return err
	}
	d.mu.Lock()
	d.tokens[kind] = token
	d.mu.Unlock()
	return nil
}

// validateTokenFormat rejects tokens that cannot possibly be a real
// credential: empty after trimming, containing whitespace or control
// characters (which would corrupt an Authorization header or a log line),
// or implausibly short.
func validateTokenFormat(token string) error {
	if strings.TrimSpace(token) == "" {
		return apperr.InvalidTokenFormat("token is empty or whitespace")
	}
	if len(token) < 8 {
		return apperr.InvalidTokenFormat("token is too short to be valid")
	}
	for _, r := range token {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return apperr.InvalidTokenFormat("token contains whitespace or non-printable characters")
		}
	}
	return nil
}

func (d *Dispatcher) tokenFor(kind envelope.TokenKind) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tokens[kind]
	return t, ok
}

func (d *Dispatcher) haveTokens() map[envelope.TokenKind]bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	have := make(map[envelope.TokenKind]bool, len(d.tokens))
	for k := range d.tokens {
		have[k] = true
	}
	return have
}

// ListTools returns every tool the dispatcher's Policy admits, with names
// rendered in the requested casing (spec.md §3's localeHint/casing knob).
func (d *Dispatcher) ListTools(casing toolspec.Casing) ([]ToolSummary, error) {
	names := d.registry.Names()
	allowed := make([]string, 0, len(names))
	for _, name := range names {
		if d.policy.resolve(d.registry, name) {
			allowed = append(allowed, name)
		}
	}

	table, err := toolspec.NewTable(casing, allowed)
	if err != nil {
		return nil, err
	}

	out := make([]ToolSummary, 0, len(allowed))
	for _, name := range allowed {
		desc, _ := d.registry.Get(name)
		out = append(out, ToolSummary{
			Name:        table.Wire(name),
			Description: desc.Description,
			InputSchema: desc.InputSchema,
		})
	}
	return out, nil
}

// Invoke runs one tool call through any installed middleware and the core
// dispatch logic. name may be in any casing the dispatcher has previously
// listed in.
func (d *Dispatcher) Invoke(ctx context.Context, name string, params map[string]any) (envelope.Envelope, error) {
	return d.invoke(ctx, name, params)
}

// invokeCore resolves name (casing-insensitively) against the registry,
// enforces policy and token-kind gating, validates params against the
// tool's schema, and runs the handler. It never lets a handler panic
// escape: it always returns an error envelope instead (spec.md §4.1, §7).
func (d *Dispatcher) invokeCore(ctx context.Context, name string, params map[string]any) (env envelope.Envelope, err error) {
	canonical := name
	if _, ok := d.registry.Get(name); !ok {
		if table, terr := d.registry.CasingTable(toolspec.CasingCamel); terr == nil {
			if c, ok := table.Canonical(name); ok {
				canonical = c
			}
		}
	}

	desc, err := d.registry.MustGet(canonical)
	if err != nil {
		return envelope.Envelope{}, err
	}

	if !d.policy.resolve(d.registry, canonical) {
		return envelope.Envelope{}, apperr.ToolNotFound(canonical)
	}

	if !allowsTokenKind(d.policy.TokenMode, desc.TokenKind, d.haveTokens()) {
		return envelope.Envelope{}, apperr.AuthUnavailable(string(desc.TokenKind))
	}

	if err := d.validateParams(desc, params); err != nil {
		return envelope.Envelope{}, err
	}

	token, _ := d.tokenFor(desc.TokenKind)
	inv := envelope.Invocation{UserToken: token, ToolName: canonical, TokenKind: desc.TokenKind}

	defer func() {
		if r := recover(); r != nil {
			env = envelope.Errorf(fmt.Sprintf("tool %s panicked: %v", canonical, r))
			err = nil
		}
	}()

	result, herr := desc.Handler(ctx, d.client, params, inv)
	if herr != nil {
		return envelope.Errorf(herr.Error()), nil
	}
	return result, nil
}

func (d *Dispatcher) validateParams(desc toolspec.Descriptor, params map[string]any) error {
	if desc.InputSchema == nil {
		return nil
	}

	d.schemaMu.Lock()
	schema, ok := d.schemas[desc.Name]
	d.schemaMu.Unlock()

	if !ok {
		raw, err := json.Marshal(desc.InputSchema)
		if err != nil {
			return apperr.Misconfigured("invalid schema for " + desc.Name)
		}
		compiler := jsonschema.NewCompiler()
		resource := desc.Name + "#schema.json"
		if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
			return apperr.Misconfigured("invalid schema for " + desc.Name)
		}
		compiled, err := compiler.Compile(resource)
		if err != nil {
			return apperr.Misconfigured("invalid schema for " + desc.Name)
		}
		schema = compiled
		d.schemaMu.Lock()
		d.schemas[desc.Name] = schema
		d.schemaMu.Unlock()
	}

	if params == nil {
		params = map[string]any{}
	}
	if err := schema.Validate(params); err != nil {
		return apperr.SchemaValidationFailure(err.Error())
	}
	return nil
}
