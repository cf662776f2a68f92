package dispatch

import "strings"

// taskTypeKeywords is the small fixed table used both by the context-hash
// builder and by context_match: a task type keyword maps to the
// capabilities it is evidence for.
var taskTypeKeywords = []string{"search", "research", "execute", "install", "analyze"}

// complexityBucket coarsely estimates task complexity from description
// length and keyword density, grounded on the dimension-weighted
// scoring idea of a reasoning-step/tool-diversity/cognitive-load
// evaluator, reduced here to the handful of signals a short tool-dispatch
// task description can actually carry: word count, detected task-type
// keyword count, and a count of multi-step connector words.
func complexityBucket(task string) string {
	lower := strings.ToLower(task)
	words := strings.Fields(lower)

	keywordHits := 0
	for _, kw := range taskTypeKeywords {
		if strings.Contains(lower, kw) {
			keywordHits++
		}
	}

	connectors := []string{"then", "after", "next", "finally", "combined with", "based on"}
	connectorHits := 0
	for _, c := range connectors {
		if strings.Contains(lower, c) {
			connectorHits++
		}
	}

	score := float64(len(words))*0.05 + float64(keywordHits)*1.5 + float64(connectorHits)*2.0

	switch {
	case score >= 7:
		return "high"
	case score >= 3:
		return "medium"
	default:
		return "low"
	}
}

// detectedKeywords returns the subset of taskTypeKeywords present in task,
// in table order, for inclusion in the context hash.
func detectedKeywords(task string) []string {
	lower := strings.ToLower(task)
	var hits []string
	for _, kw := range taskTypeKeywords {
		if strings.Contains(lower, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

// contextMatch scores how well capability matches the task's detected
// keywords and type: a simple keyword-to-capability table lookup. A
// capability name that itself contains, or is contained by, a detected
// keyword or the task type counts as a match.
func contextMatch(capability string, taskCtx TaskContext) float64 {
	capability = strings.ToLower(capability)
	hits := 0
	total := 0

	if taskCtx.Task.Type != "" {
		total++
		t := strings.ToLower(taskCtx.Task.Type)
		if strings.Contains(capability, t) || strings.Contains(t, capability) {
			hits++
		}
	}

	for _, kw := range detectedKeywords(taskCtx.Task.Description) {
		total++
		if strings.Contains(capability, kw) || strings.Contains(kw, capability) {
			hits++
		}
	}

	if total == 0 {
		return 0.5 // no signal either way, neutral
	}
	return float64(hits) / float64(total)
}
