// Package alias implements the Alias & Mapping Layer (C2): it normalizes a
// ToolCall produced by the reasoning loop — which may use deprecated,
// shortened, or inconsistent tool_id/action/parameter names — into the
// canonical vocabulary the rest of the system understands.
//
// It is the expanded Unified Mapping Manager described in SPEC_FULL.md:
// beyond the minimal normalize(call) described in the distilled spec, it
// hot-reloads its mapping tables from a YAML file and reports which
// mappings changed on each reload, so callers (notably the registry) can
// decide whether a forced refresh is warranted.
package alias

import (
	"context"
)

// Mappings is the normalized, in-memory view of the alias/mapping
// configuration file.
type Mappings struct {
	// ToolIDAliases maps a deprecated/alternate tool_id to its canonical form.
	ToolIDAliases map[string]string `yaml:"tool_id_aliases"`

	// ActionAliases maps "tool_id/deprecated_action" to a canonical
	// "action" name scoped to that tool.
	ActionAliases map[string]string `yaml:"action_mappings"`

	// ParameterAliases maps "tool_id/action/deprecated_param" (or the
	// wildcard "*/*/deprecated_param" for cross-tool aliases) to the
	// canonical parameter name.
	ParameterAliases map[string]string `yaml:"parameter_mappings"`

	// ErrorCorrections holds the static correction hints the Validation
	// Critic (C10) consults before falling back to an LLM call.
	ErrorCorrections ErrorCorrections `yaml:"error_corrections"`
}

// ErrorCorrections is the "error_corrections" section of the mapping file:
// static patterns C10 tries before reaching for the LLM or an edit-distance
// fallback.
type ErrorCorrections struct {
	// ActionDefaults maps a keyword found in the task/error text (e.g.
	// "search") to the canonical action it should route to (e.g.
	// "research") when no supported-action edit-distance match is close
	// enough.
	ActionDefaults map[string]string `yaml:"action_errors"`

	// ParameterHints maps a parameter name known to fail validation to a
	// literal replacement value, tried before the LLM-backed
	// parameter-correction strategy.
	ParameterHints map[string]interface{} `yaml:"parameter_errors"`

	// AlternativeTools maps "tool_id/action" to a preconfigured
	// alternative "tool_id/action" offering the same capability.
	AlternativeTools map[string]string `yaml:"alternative_tools"`

	// SkillGapTools maps a keyword found in an error message (e.g. "pdf",
	// "sql", "image") to the name of a missing tool class to request via
	// an install_tools patch.
	SkillGapTools map[string]string `yaml:"skill_gap_tools"`
}

// Diff describes what changed between two successive Mappings, surfaced to
// callers via Manager.Watch so C1 can decide whether normalized call
// shapes changed enough to warrant a forced registry refresh.
type Diff struct {
	AddedToolAliases    []string
	RemovedToolAliases   []string
	AddedActionAliases   []string
	RemovedActionAliases []string
	AddedParamAliases    []string
	RemovedParamAliases  []string
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool {
	return len(d.AddedToolAliases) == 0 && len(d.RemovedToolAliases) == 0 &&
		len(d.AddedActionAliases) == 0 && len(d.RemovedActionAliases) == 0 &&
		len(d.AddedParamAliases) == 0 && len(d.RemovedParamAliases) == 0
}

// Manager owns the current Mappings and normalizes ToolCalls against them.
type Manager interface {
	// Load reads the mapping file from disk, replacing the in-memory tables.
	Load(ctx context.Context) error

	// Current returns the mapping table currently in effect.
	Current() Mappings

	// Normalize rewrites toolID/action/parameters using the current
	// mapping tables. It returns the (possibly unchanged) triple, with the
	// parameters in a new map (the caller's map is not modified), and the
	// list of fields that were rewritten, for CorrectionsApplied
	// bookkeeping upstream.
	Normalize(toolID, action string, parameters map[string]interface{}) (normToolID, normAction string, normParams map[string]interface{}, rewritten []string)

	// Watch starts a background watch of the mapping file (if hot reload
	// is enabled) and returns a channel of Diffs, one per successful
	// reload. The channel is closed when ctx is canceled.
	Watch(ctx context.Context) <-chan Diff
}
