// Package prompt renders the one LLM message exchange this service ever
// sends: a system turn describing the tool-decision contract, a user turn
// carrying the task, and the running observation turns fed back after each
// dispatched call. It is deliberately a single rendering function rather
// than a template library — the "thin prompt-rendering helper" PURPOSE &
// SCOPE calls for, not the teacher's multi-provider, multi-template
// internal/reasoning/prompt manager.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/toolrun-ai/toolrund/internal/llmclient"
	"github.com/toolrun-ai/toolrund/pkg/types"
)

const systemPrompt = `You are the reasoning core of an autonomous tool-using agent.

On every turn, respond with exactly one JSON object and nothing else — no
prose, no markdown fences:

  - To invoke a tool:
      {"capability": "<action name>", "parameters": {...}, "thinking": "<brief rationale>"}
  - To conclude the task:
      {"conclude": true, "summary": "<final answer>"}

"capability" names the action you need performed (for example "search" or
"run_code"); the runtime selects which concrete tool server satisfies it.`

// Observation is the outcome of one dispatched capability, rendered back
// into the conversation so the model can react to it on its next turn.
type Observation struct {
	Capability string
	Outcome    types.Outcome
	Payload    interface{}
	ErrorCause string
}

// Initial renders the system prompt and the first user turn for task.
func Initial(task types.Task) []llmclient.Message {
	return []llmclient.Message{
		{Role: llmclient.RoleSystem, Content: systemPrompt},
		{Role: llmclient.RoleUser, Content: renderTask(task)},
	}
}

func renderTask(task types.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task.Description)
	if task.Type != "" {
		fmt.Fprintf(&b, "Type: %s\n", task.Type)
	}
	if len(task.Constraints) > 0 {
		data, _ := json.Marshal(task.Constraints)
		fmt.Fprintf(&b, "Constraints: %s\n", data)
	}
	if len(task.Preferences) > 0 {
		data, _ := json.Marshal(task.Preferences)
		fmt.Fprintf(&b, "Preferences: %s\n", data)
	}
	return b.String()
}

// AppendObservation appends the model's raw decision turn plus the
// resulting observation, ready for the next Generate call.
func AppendObservation(messages []llmclient.Message, rawDecision string, obs Observation) []llmclient.Message {
	out := append(messages, llmclient.Message{Role: llmclient.RoleAssistant, Content: rawDecision})

	var b strings.Builder
	fmt.Fprintf(&b, "Observation for capability %q: outcome=%s", obs.Capability, obs.Outcome)
	if obs.ErrorCause != "" {
		fmt.Fprintf(&b, " error=%q", obs.ErrorCause)
	}
	if obs.Payload != nil {
		data, _ := json.Marshal(obs.Payload)
		fmt.Fprintf(&b, " payload=%s", data)
	}
	return append(out, llmclient.Message{Role: llmclient.RoleUser, Content: b.String()})
}

// AppendRetryNudge appends a corrective turn when the model's last reply
// could not be parsed as a decision object.
func AppendRetryNudge(messages []llmclient.Message, rawDecision, reason string) []llmclient.Message {
	out := append(messages, llmclient.Message{Role: llmclient.RoleAssistant, Content: rawDecision})
	return append(out, llmclient.Message{
		Role:    llmclient.RoleUser,
		Content: fmt.Sprintf("Your last response could not be parsed (%s). Respond with exactly one JSON object as instructed.", reason),
	})
}
