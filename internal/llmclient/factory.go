package llmclient

import (
	"context"
	"fmt"
	"time"
)

// nullClient is returned when no LLM provider is configured. Components
// that optionally use a Client (e.g. the critic's parameter-correction
// strategy) must treat its error as "strategy unavailable," not a failure
// of the call that triggered it.
type nullClient struct{}

// NewNullClient returns a Client that always reports itself as
// unconfigured. Used when cfg.LLM.Provider == "null".
func NewNullClient() Client { return nullClient{} }

func (nullClient) Generate(ctx context.Context, messages []Message, deadline time.Time) (string, error) {
	return "", fmt.Errorf("llmclient: no provider configured")
}
