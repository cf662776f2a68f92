package classifier

import (
	"strings"
	"time"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

var categoryPatterns = []struct {
	category Category
	keywords []string
}{
	{categoryNetwork, []string{"connect", "socket", "dns", "http"}},
	{categoryTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{categoryResource, []string{"memory", "disk", "quota", "out of space", "oom"}},
	{categoryConfiguration, []string{"missing setting", "missing config", "not configured", "config"}},
	{categoryDependency, []string{"module", "import", "no such package", "dependency"}},
	{categoryData, []string{"json", "parse", "unmarshal", "format", "decode"}},
}

// Category is a local alias avoiding repeated qualification below.
type Category = types.Category

const (
	categoryNetwork       = types.CategoryNetwork
	categoryTimeout       = types.CategoryTimeout
	categoryTool          = types.CategoryTool
	categoryResource      = types.CategoryResource
	categoryConfiguration = types.CategoryConfiguration
	categoryDependency    = types.CategoryDependency
	categoryData          = types.CategoryData
	categorySystem        = types.CategorySystem
)

var severityBaseline = map[types.Category]types.Severity{
	categoryDependency:    types.SeverityCritical,
	categoryResource:      types.SeverityHigh,
	categoryConfiguration: types.SeverityHigh,
	categorySystem:        types.SeverityHigh,
	categoryNetwork:       types.SeverityMedium,
	categoryTool:          types.SeverityMedium,
	categoryData:          types.SeverityMedium,
	categoryTimeout:       types.SeverityLow,
}

const failuresPerHourBumpThreshold = 5

type ruleClassifier struct{}

// New constructs a Classifier.
func New() Classifier { return ruleClassifier{} }

func (ruleClassifier) Classify(in Input) (types.Category, types.Severity) {
	category := classify(in)
	severity := severityBaseline[category]

	if in.IsCoreComponent {
		severity = severity.Bump()
	}
	if in.FailuresLastHour > failuresPerHourBumpThreshold {
		severity = severity.Bump()
	}
	if in.IsCoreComponent && severity.Less(types.SeverityMedium) {
		severity = types.SeverityMedium
	}

	return category, severity
}

func classify(in Input) types.Category {
	if isToolComponent(in.Component) {
		return categoryTool
	}

	message := strings.ToLower(in.Error.Message + " " + in.Error.Kind)
	for _, p := range categoryPatterns {
		for _, kw := range p.keywords {
			if strings.Contains(message, kw) {
				return p.category
			}
		}
	}
	return categorySystem
}

func isToolComponent(component string) bool {
	lower := strings.ToLower(component)
	return strings.Contains(lower, "tool") || strings.Contains(lower, "mcp") || strings.Contains(lower, "client")
}

func (c ruleClassifier) ToErrorEvent(in Input, id string, at time.Time) types.ErrorEvent {
	category, severity := c.Classify(in)
	return types.ErrorEvent{
		ID:        id,
		Timestamp: at,
		Component: in.Component,
		ErrorType: in.Error.Kind,
		Message:   in.Error.Message,
		Severity:  severity,
		Category:  category,
		Context:   in.Call,
	}
}
