// Package dispatcher resolves which tools a caller may see and invoke, and
// carries out invocations against internal/toolspec descriptors. It
// generalizes the teacher's tools/policy.Resolver
// (github.com/haasonsaas/nexus/internal/tools/policy/resolver.go) from a
// core/mcp/edge source taxonomy into the flat provider-qualified namespace
// internal/toolspec uses.
package dispatcher

import (
	"strings"

	"github.com/corebridge/platform-core/internal/toolspec"
	"github.com/corebridge/platform-core/pkg/envelope"
)

// Policy is the per-caller configuration spec.md §4.1 resolves listTools
// and invoke() against: a preset expanded into an allow list, explicit
// allow/deny overrides (deny always wins), and per-provider overrides for
// callers that need a single provider's tools opened up or shut down
// without touching the global preset.
type Policy struct {
	// Preset names a registered toolspec.Preset to start from. Empty means
	// "everything the registry knows about".
	Preset string
	// Allow, if non-empty, restricts the preset expansion to these patterns
	// (exact name or "provider.*" wildcard).
	Allow []string
	// Deny removes matching tools regardless of Preset/Allow. Deny always
	// wins over Allow (spec.md §4.1 edge case).
	Deny []string
	// ByProvider overrides Allow/Deny for specific providers — e.g. a
	// caller on the "readonly" preset that additionally needs every
	// "internal-admin" tool denied outright.
	ByProvider map[string]ProviderOverride
	// TokenMode selects how the dispatcher gates tools by the credential
	// kind they declare (spec.md §3's tokenMode: tenantOnly/userOnly/auto).
	TokenMode TokenMode
}

// ProviderOverride narrows or widens a Policy for one provider.
type ProviderOverride struct {
	Allow []string
	Deny  []string
}

// TokenMode controls how a Descriptor's TokenKind is enforced against the
// token currently available to the dispatcher.
type TokenMode string

const (
	// TokenModeAuto allows a tool to run with whatever token kind is
	// available, app token included, as long as one is set.
	TokenModeAuto TokenMode = "auto"
	// TokenModeUserOnly refuses to invoke a tool declared TokenUser unless
	// setUserToken has been called for this dispatcher instance.
	TokenModeUserOnly TokenMode = "userOnly"
	// TokenModeTenantOnly refuses TokenTenant tools without a tenant token.
	TokenModeTenantOnly TokenMode = "tenantOnly"
)

func matchPattern(pattern, name string) bool {
	if pattern == "*" || pattern == name {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if matchPattern(p, name) {
			return true
		}
	}
	return false
}

func providerOf(name string) string {
	if idx := strings.Index(name, "."); idx > 0 {
		return name[:idx]
	}
	return ""
}

// resolve reports whether name is allowed under p, given the full candidate
// set reg knows about. Deny (global, then provider) always wins; absent any
// Allow/Preset restriction, everything not denied is allowed.
func (p Policy) resolve(reg *toolspec.Registry, name string) bool {
	if matchesAny(p.Deny, name) {
		return false
	}

	provider := providerOf(name)
	if ov, ok := p.ByProvider[provider]; ok {
		if matchesAny(ov.Deny, name) {
			return false
		}
		if len(ov.Allow) > 0 {
			return matchesAny(ov.Allow, name)
		}
	}

	if p.Preset != "" {
		preset, ok := reg.Preset(p.Preset)
		if ok && len(preset.Tools) > 0 && !preset.Contains(name) {
			return false
		}
	}

	if len(p.Allow) > 0 {
		return matchesAny(p.Allow, name)
	}
	return true
}

// allowsTokenKind reports whether mode permits a tool requiring kind to run
// given which token kinds are currently set on the invocation state.
func allowsTokenKind(mode TokenMode, kind envelope.TokenKind, have map[envelope.TokenKind]bool) bool {
	switch mode {
	case TokenModeUserOnly:
		if kind == envelope.TokenUser {
			return have[envelope.TokenUser]
		}
		return true
	case TokenModeTenantOnly:
		if kind == envelope.TokenTenant {
			return have[envelope.TokenTenant]
		}
		return true
	default: // TokenModeAuto, ""
		if kind == "" || kind == envelope.TokenApp {
			return true
		}
		return have[kind]
	}
}
