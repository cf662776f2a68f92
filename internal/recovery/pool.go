package recovery

import "github.com/toolrun-ai/toolrund/pkg/types"

// StandardActionNames enumerates the category → eligible-action-name pool
// from spec.md's recovery table. Plan does not read this table: a
// category's pool is whichever registered Actions list that category in
// their Categories field, and no code in this repository reads
// StandardActionNames.
var StandardActionNames = map[types.Category][]string{
	types.CategoryNetwork:       {"retry", "fallback-to-other-transport"},
	types.CategoryTool:          {"restart", "fallback", "isolate"},
	types.CategoryTimeout:       {"retry-with-extended-timeout", "compensate"},
	types.CategoryResource:      {"cleanup", "optimize"},
	types.CategoryConfiguration: {"reset-to-defaults", "repair"},
}
