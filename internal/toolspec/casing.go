package toolspec

import (
	"strings"

	"github.com/corebridge/platform-core/internal/apperr"
)

// Casing selects the wire representation of a tool name. Some LLM tool-
// calling APIs reject dots or colons in function names, so the dispatcher's
// listTools() can present names in whichever casing a caller's provider
// requires while invoke() maps back to the canonical form.
type Casing string

const (
	// CasingDotted is the canonical form itself: "github.create_issue".
	CasingDotted Casing = "dotted"
	// CasingCamel joins segments as camelCase: "githubCreateIssue".
	CasingCamel Casing = "camel"
	// CasingSnake joins segments as snake_case: "github_create_issue".
	CasingSnake Casing = "snake"
	// CasingUnderscore is an alias of CasingSnake kept for callers that
	// think of the two as distinct knobs (spec.md §3 names both).
	CasingUnderscore Casing = "underscore"
)

func splitSegments(canonical string) []string {
	f := func(r rune) bool {
		return r == '.' || r == ':' || r == '_' || r == '-'
	}
	raw := strings.FieldsFunc(canonical, f)
	segs := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			segs = append(segs, strings.ToLower(s))
		}
	}
	return segs
}

// Render converts a canonical dotted name into the given casing. It is a
// pure function of its input, so two distinct canonical names may render to
// the same string — callers that need a collision-free mapping must go
// through a Table, which detects and rejects that case at registration
// time.
func Render(canonical string, casing Casing) (string, error) {
	switch casing {
	case CasingDotted, "":
		return canonical, nil
	case CasingSnake, CasingUnderscore:
		return strings.Join(splitSegments(canonical), "_"), nil
	case CasingCamel:
		segs := splitSegments(canonical)
		if len(segs) == 0 {
			return "", apperr.InvalidName(canonical)
		}
		var b strings.Builder
		b.WriteString(segs[0])
		for _, s := range segs[1:] {
			b.WriteString(strings.ToUpper(s[:1]))
			b.WriteString(s[1:])
		}
		return b.String(), nil
	default:
		return "", apperr.InvalidName(string(casing))
	}
}

// Table is a bijective name-casing lookup: it renders every registered
// canonical name into a target casing once, up front, and fails fast if two
// canonical names would collide under that casing — this is what makes the
// transform bijective in practice even though Render alone is not
// injective.
type Table struct {
	casing  Casing
	toWire  map[string]string // canonical -> wire
	toCanon map[string]string // wire -> canonical
}

// NewTable builds a Table for casing over the given canonical names.
func NewTable(casing Casing, canonicalNames []string) (*Table, error) {
	t := &Table{
		casing:  casing,
		toWire:  make(map[string]string, len(canonicalNames)),
		toCanon: make(map[string]string, len(canonicalNames)),
	}
	for _, name := range canonicalNames {
		wire, err := Render(name, casing)
		if err != nil {
			return nil, err
		}
		if existing, ok := t.toCanon[wire]; ok && existing != name {
			return nil, apperr.InvalidName(name + " collides with " + existing + " under " + string(casing) + " casing")
		}
		t.toWire[name] = wire
		t.toCanon[wire] = name
	}
	return t, nil
}

// Wire returns the rendered name for canonical, or canonical itself if it
// was not part of the table (e.g. newly registered after the table was
// built — callers should rebuild the table on registry changes).
func (t *Table) Wire(canonical string) string {
	if t == nil {
		return canonical
	}
	if w, ok := t.toWire[canonical]; ok {
		return w
	}
	return canonical
}

// Canonical resolves a wire-format name back to its canonical form.
func (t *Table) Canonical(wire string) (string, bool) {
	if t == nil {
		return wire, true
	}
	c, ok := t.toCanon[wire]
	return c, ok
}
