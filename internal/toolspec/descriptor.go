// Package toolspec defines the Tool Descriptor and Preset types the
// dispatcher resolves against, plus the bijective name-casing transforms a
// caller's wire format may require. It generalizes the teacher's
// tools/naming package (github.com/haasonsaas/nexus/internal/tools/naming)
// from a fixed core/mcp/edge source taxonomy into a single flat descriptor
// keyed by a provider-qualified canonical name.
package toolspec

import (
	"github.com/corebridge/platform-core/internal/apperr"
	"github.com/corebridge/platform-core/pkg/envelope"
)

// Descriptor is everything the dispatcher needs to advertise and invoke one
// tool (spec.md §3, Tool Descriptor).
type Descriptor struct {
	// Name is the canonical dotted identifier, e.g. "github.create_issue".
	Name string
	// Provider groups descriptors for ByProvider policy overrides (spec.md
	// §4.1) — usually the text before the first dot of Name.
	Provider string
	// Description is surfaced verbatim in listTools responses.
	Description string
	// InputSchema is a JSON-Schema document (or nil if the tool takes no
	// parameters); internal/dispatcher validates invoke() params against it
	// via santhosh-tekuri/jsonschema/v5.
	InputSchema map[string]any
	// TokenKind selects which credential kind this tool requires.
	TokenKind envelope.TokenKind
	// Handler is the function actually invoked.
	Handler envelope.Handler
}

func (d Descriptor) validate() error {
	if d.Name == "" {
		return apperr.InvalidName("<empty>")
	}
	if d.Handler == nil {
		return apperr.Misconfigured("descriptor " + d.Name + " has no handler")
	}
	return nil
}
