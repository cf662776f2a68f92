package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/toolrun-ai/toolrund/internal/ledger"
	"github.com/toolrun-ai/toolrund/pkg/types"
)

// confidenceThreshold is the score above which an outcome is considered
// confident enough to nudge the weights (spec: "confidence > 0.8").
const confidenceThreshold = 0.8

type historyKey struct {
	toolID, action string
	ctxHash        ContextHash
}

type historyStats struct {
	successes int
	total     int
}

type adaptiveDispatcher struct {
	ledger   ledger.Ledger
	adaptStep float64

	mu      sync.Mutex
	weights Weights
	history map[historyKey]*historyStats
}

// New constructs a Dispatcher seeded with the given weights and adapt step.
func New(led ledger.Ledger, initial Weights, adaptStep float64) Dispatcher {
	return &adaptiveDispatcher{
		ledger:    led,
		adaptStep: adaptStep,
		weights:   initial,
		history:   map[historyKey]*historyStats{},
	}
}

func (d *adaptiveDispatcher) Weights() Weights {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.weights
}

func (d *adaptiveDispatcher) ContextHash(taskCtx TaskContext) ContextHash {
	parts := []string{
		taskCtx.Task.Type,
		strings.Join(detectedKeywords(taskCtx.Task.Description), ","),
		complexityBucket(taskCtx.Task.Description),
		taskCtx.LoadBucket,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return ContextHash(hex.EncodeToString(sum[:])[:16])
}

func (d *adaptiveDispatcher) performanceScore(c Candidate) float64 {
	if c.AvgDuration <= 0 {
		return 1.0
	}
	return 1.0 / (1.0 + c.AvgDuration.Seconds())
}

func (d *adaptiveDispatcher) historicalSuccessRate(c Candidate, ctxHash ContextHash) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.history[historyKey{c.ToolID, c.Action, ctxHash}]
	if !ok || st.total == 0 {
		return 0.5 // no history yet, neutral prior
	}
	return float64(st.successes) / float64(st.total)
}

// terms holds the four weighted contributions for one candidate, used both
// to compute the score and to identify which term "contributed most" for
// weight adaptation.
type terms struct {
	historical, performance, context, reliability float64
}

func (d *adaptiveDispatcher) score(capability string, c Candidate, taskCtx TaskContext, ctxHash ContextHash, w Weights) (float64, terms, float64) {
	reliability := d.ledger.Reliability(c.ToolID)
	t := terms{
		historical:  w.Historical * d.historicalSuccessRate(c, ctxHash),
		performance: w.Performance * d.performanceScore(c),
		context:     w.Context * contextMatch(capability, taskCtx),
		reliability: w.Reliability * reliability,
	}
	return t.historical + t.performance + t.context + t.reliability, t, reliability
}

func (d *adaptiveDispatcher) Select(capability string, candidates []Candidate, taskCtx TaskContext) []types.CandidateScore {
	ctxHash := d.ContextHash(taskCtx)
	w := d.Weights()
	now := time.Now()

	out := make([]types.CandidateScore, 0, len(candidates))
	for _, c := range candidates {
		if !d.ledger.IsAvailable(c.ToolID, now) {
			continue
		}
		score, _, reliability := d.score(capability, c, taskCtx, ctxHash, w)
		out = append(out, types.CandidateScore{
			ToolID:      c.ToolID,
			Action:      c.Action,
			Score:       score,
			Reliability: reliability,
			AvgDuration: c.AvgDuration,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Reliability != b.Reliability {
			return a.Reliability > b.Reliability
		}
		if a.AvgDuration != b.AvgDuration {
			return a.AvgDuration < b.AvgDuration
		}
		return a.ToolID < b.ToolID
	})

	return out
}

func (d *adaptiveDispatcher) RecordOutcome(winner Candidate, taskCtx TaskContext, success bool) {
	ctxHash := d.ContextHash(taskCtx)

	d.mu.Lock()
	key := historyKey{winner.ToolID, winner.Action, ctxHash}
	st, ok := d.history[key]
	if !ok {
		st = &historyStats{}
		d.history[key] = st
	}
	st.total++
	if success {
		st.successes++
	}
	w := d.weights
	d.mu.Unlock()

	_, t, _ := d.score("", winner, taskCtx, ctxHash, w)
	score, dominant := dominantTerm(t)
	if score < confidenceThreshold {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	nudge(&d.weights, dominant, success, d.adaptStep)
	renormalize(&d.weights)
}

// dominantTerm returns the combined score and which of the four weighted
// terms contributed most to it.
func dominantTerm(t terms) (float64, string) {
	total := t.historical + t.performance + t.context + t.reliability
	best := "historical"
	bestVal := t.historical
	if t.performance > bestVal {
		best, bestVal = "performance", t.performance
	}
	if t.context > bestVal {
		best, bestVal = "context", t.context
	}
	if t.reliability > bestVal {
		best, bestVal = "reliability", t.reliability
	}
	return total, best
}

func nudge(w *Weights, term string, success bool, step float64) {
	factor := 1.0 - step
	if success {
		factor = 1.0 + step
	}
	switch term {
	case "historical":
		w.Historical *= factor
	case "performance":
		w.Performance *= factor
	case "context":
		w.Context *= factor
	case "reliability":
		w.Reliability *= factor
	}
}

func renormalize(w *Weights) {
	sum := w.Historical + w.Performance + w.Context + w.Reliability
	if sum <= 0 {
		return
	}
	w.Historical /= sum
	w.Performance /= sum
	w.Context /= sum
	w.Reliability /= sum
}
