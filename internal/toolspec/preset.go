package toolspec

// Preset is a named, ordered set of tool names a caller can select instead
// of enumerating an allow list by hand (spec.md §3), grounded on the
// teacher's tools/policy.DefaultGroups convenience groups.
type Preset struct {
	Name  string
	Tools []string
}

// Contains reports whether name is a member of the preset.
func (p Preset) Contains(name string) bool {
	for _, t := range p.Tools {
		if t == name {
			return true
		}
	}
	return false
}

// DefaultPresets mirrors the teacher's built-in convenience groups,
// generalized to this domain's tool names: a deployment is free to layer its
// own presets on top via Registry.RegisterPreset.
func DefaultPresets() map[string]Preset {
	return map[string]Preset{
		"readonly": {Name: "readonly", Tools: nil},
		"full":     {Name: "full", Tools: nil},
	}
}
