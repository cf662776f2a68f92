package validator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/toolrun-ai/toolrund/internal/registry"
	"github.com/toolrun-ai/toolrund/pkg/types"
)

type pipeline struct {
	reg registry.Registry
}

// New constructs a Validator backed by the given Tool-Schema Registry.
func New(reg registry.Registry) Validator {
	return &pipeline{reg: reg}
}

func (p *pipeline) Validate(ctx context.Context, call types.ToolCall, taskCtx TaskContext) Result {
	snap := p.reg.Snapshot(ctx)

	schema, ok := snap.Lookup(call.ToolID)
	if !ok {
		if suggestion, found := nearestToolID(call.ToolID, snap.Whitelist()); found {
			return Result{
				Outcome:    OutcomeRejected,
				Reasons:    []string{fmt.Sprintf("unknown tool_id %q", call.ToolID)},
				Suggestion: suggestion,
			}
		}
		return Result{Outcome: OutcomeRejected, Reasons: []string{fmt.Sprintf("unknown tool_id %q", call.ToolID)}}
	}

	action, actionOK := schema.Actions[call.Action]
	if !actionOK {
		if suggestion, found := nearestAction(call.Action, schema); found {
			return Result{
				Outcome:    OutcomeRejected,
				Reasons:    []string{fmt.Sprintf("unknown action %q for tool %q", call.Action, call.ToolID)},
				Suggestion: suggestion,
			}
		}
		return Result{Outcome: OutcomeRejected, Reasons: []string{fmt.Sprintf("unknown action %q for tool %q", call.Action, call.ToolID)}}
	}

	out := call.Clone()
	var notes []string
	corrected := false

	autoComplete(out.Parameters, action, taskCtx, &notes, &corrected)

	for name, spec := range action.Parameters {
		val, present := out.Parameters[name]
		if present && spec.Required && isEmptyValue(val) {
			// An empty string / empty collection counts as missing for a
			// required parameter, per the validator's non-empty check.
			present = false
		}
		if !present {
			if spec.Required {
				return Result{
					Outcome: OutcomeRejected,
					Reasons: []string{fmt.Sprintf("missing required parameter %q", name)},
				}
			}
			if spec.Default != nil {
				out.Parameters[name] = spec.Default
				notes = append(notes, fmt.Sprintf("defaulted parameter %q", name))
				corrected = true
			}
			continue
		}

		coerced, ok := coerce(val, spec.Type)
		if !ok {
			return Result{
				Outcome: OutcomeRejected,
				Reasons: []string{fmt.Sprintf("parameter %q has wrong type, expected %s", name, spec.Type)},
			}
		}
		if coerced != val {
			out.Parameters[name] = coerced
			notes = append(notes, fmt.Sprintf("coerced parameter %q to %s", name, spec.Type))
			corrected = true
		}
	}

	if reasons := crossParameterChecks(call.Action, out.Parameters); len(reasons) > 0 {
		return Result{Outcome: OutcomeRejected, Reasons: reasons}
	}

	outcome := OutcomeAccepted
	if corrected {
		outcome = OutcomeAutoCorrected
	}

	return Result{Outcome: outcome, Call: out, Reasons: notes}
}

// autoComplete fills in a handful of commonly-omitted required parameters
// using a per-kind heuristic, run only when the parameter is missing or
// empty: "query"/"q" take the raw task description; "code" gets a minimal
// stub with the description embedded as a comment; "url" extracts the
// first URL-like token from the description (falling back to a
// keyword-selected default); "index" maps ordinal words ("first"/"second")
// to 0/1; "text" extracts a quoted substring or falls back to a truncated
// description.
func autoComplete(params map[string]interface{}, action types.ActionSpec, taskCtx TaskContext, notes *[]string, corrected *bool) {
	for _, key := range []string{"query", "q", "text", "code", "url", "index"} {
		spec, declared := action.Parameters[key]
		if !declared || !spec.Required {
			continue
		}
		if val, present := params[key]; present && !isEmptyValue(val) {
			continue
		}
		if taskCtx.TaskDescription == "" {
			// Every heuristic below needs the task description as its raw
			// material; with none available there is nothing to infer from.
			continue
		}

		var filled interface{}
		var ok bool
		switch key {
		case "query", "q":
			filled, ok = taskCtx.TaskDescription, true
		case "code":
			filled, ok = codeStub(taskCtx.TaskDescription), true
		case "url":
			filled, ok = urlFromDescription(taskCtx.TaskDescription)
		case "index":
			filled, ok = indexFromDescription(taskCtx.TaskDescription), true
		case "text":
			filled, ok = textFromDescription(taskCtx.TaskDescription)
		}
		if !ok {
			continue
		}

		params[key] = filled
		*notes = append(*notes, fmt.Sprintf("auto-completed %q from task description", key))
		*corrected = true
	}
}

// codeStub synthesizes a minimal code stub carrying the task description as
// a comment, for a required "code" parameter with no value to run.
func codeStub(description string) string {
	return fmt.Sprintf("# %s\npass\n", description)
}

// defaultURLsByKeyword maps a task-description keyword to a canonical
// fallback URL, consulted when no URL-like token appears in the
// description at all.
var defaultURLsByKeyword = map[string]string{
	"google": "https://www.google.com/search",
}

// urlFromDescription extracts the first URL-like token from description,
// falling back to a keyword-selected default.
func urlFromDescription(description string) (string, bool) {
	if description == "" {
		return "", false
	}
	if u := firstURLToken(description); u != "" {
		return u, true
	}
	lower := strings.ToLower(description)
	for keyword, url := range defaultURLsByKeyword {
		if strings.Contains(lower, keyword) {
			return url, true
		}
	}
	return "", false
}

// firstURLToken returns the first whitespace-delimited token in s that
// looks like a URL (has a scheme, or starts with "www."), trimmed of
// common trailing punctuation.
func firstURLToken(s string) string {
	for _, tok := range strings.Fields(s) {
		trimmed := strings.Trim(tok, ".,;:!?()[]\"'")
		if strings.Contains(trimmed, "://") || strings.HasPrefix(trimmed, "www.") {
			return trimmed
		}
	}
	return ""
}

// indexFromDescription maps ordinal words in description to 0/1, defaulting
// to 0 (the first item) when no ordinal word is present.
func indexFromDescription(description string) float64 {
	lower := strings.ToLower(description)
	if strings.Contains(lower, "second") {
		return 1
	}
	return 0
}

// textFromDescription extracts a quoted substring from description if
// present, otherwise returns the description truncated to a bounded length.
func textFromDescription(description string) (string, bool) {
	if description == "" {
		return "", false
	}
	const maxLen = 200
	if q := quotedSubstring(description); q != "" {
		return q, true
	}
	if len(description) > maxLen {
		return description[:maxLen], true
	}
	return description, true
}

// quotedSubstring returns the contents of the first '"'- or '\''-delimited
// substring in s, or "" if none is found.
func quotedSubstring(s string) string {
	for _, q := range []byte{'"', '\''} {
		start := strings.IndexByte(s, q)
		if start == -1 {
			continue
		}
		end := strings.IndexByte(s[start+1:], q)
		if end == -1 {
			continue
		}
		return s[start+1 : start+1+end]
	}
	return ""
}

// isEmptyValue reports whether val counts as "missing" for a required
// parameter: nil, an empty string, or an empty slice/map.
func isEmptyValue(val interface{}) bool {
	switch v := val.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []interface{}:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	}
	return false
}

// crossParameterChecks applies the small set of cross-parameter consistency
// rules named in the component design, e.g. an "input-text" action must not
// carry a blank text body.
func crossParameterChecks(action string, params map[string]interface{}) []string {
	var reasons []string

	if action == "input-text" || action == "input_text" {
		text, ok := params["text"].(string)
		if ok && text == "" {
			reasons = append(reasons, "input-text action requires a non-empty \"text\" parameter")
		}
	}

	return reasons
}

// coerce attempts to convert val to the declared ParamType, returning the
// coerced value and whether coercion succeeded. Values already of the
// correct shape pass through unchanged.
func coerce(val interface{}, want types.ParamType) (interface{}, bool) {
	switch want {
	case types.ParamString:
		switch v := val.(type) {
		case string:
			return v, true
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		case bool:
			return strconv.FormatBool(v), true
		}
		return nil, false

	case types.ParamInteger:
		switch v := val.(type) {
		case float64:
			if v == float64(int64(v)) {
				return v, true
			}
			return nil, false
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return float64(n), true
			}
			return nil, false
		}
		return nil, false

	case types.ParamNumber:
		switch v := val.(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
			return nil, false
		}
		return nil, false

	case types.ParamBoolean:
		switch v := val.(type) {
		case bool:
			return v, true
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b, true
			}
			return nil, false
		}
		return nil, false

	case types.ParamArray:
		if _, ok := val.([]interface{}); ok {
			return val, true
		}
		return nil, false

	case types.ParamMapping:
		if _, ok := val.(map[string]interface{}); ok {
			return val, true
		}
		return nil, false
	}

	return val, true
}

func nearestToolID(want string, candidates []string) (string, bool) {
	return nearest(want, candidates, 3)
}

// NearestToolID finds the closest live tool_id to want by edit distance,
// exported for C10's tool-mismatch correction strategy.
func NearestToolID(want string, candidates []string) (string, bool) {
	return nearestToolID(want, candidates)
}

func nearestAction(want string, schema types.ToolSchema) (string, bool) {
	candidates := make([]string, 0, len(schema.Actions))
	for a := range schema.Actions {
		candidates = append(candidates, a)
	}
	return nearest(want, candidates, 3)
}

// Nearest finds the closest candidate to want by edit distance, accepting
// matches within maxDist. Exported for C10's action-correction strategy.
func Nearest(want string, candidates []string, maxDist int) (string, bool) {
	return nearest(want, candidates, maxDist)
}

// nearest finds the closest candidate to want by Levenshtein distance,
// accepting matches within maxDist.
func nearest(want string, candidates []string, maxDist int) (string, bool) {
	best := ""
	bestDist := maxDist + 1
	for _, c := range candidates {
		d := levenshtein(want, c)
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	if bestDist > maxDist {
		return "", false
	}
	return best, true
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			cur[j] = m
		}
		prev, cur = cur, prev
	}

	return prev[lb]
}
