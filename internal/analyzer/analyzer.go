// internal/analyzer/analyzer.go
// Package analyzer derives a state schema from application source code
// using a Gemini model. The model proposes states; everything downstream
// only trusts the result after schema validation.
package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/stagehand/api/schemas"
	"github.com/xkilldash9x/stagehand/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const analysisPromptTemplate = `You are a code analysis expert specializing in identifying behavioral states and stages in interactive applications.

Analyze the following %s code and detect ALL distinct behavioral states or stages in the application.

Keep all text descriptions CONCISE:
- description: max 100 characters
- purpose: max 50 characters
- range_description: max 100 characters

For EACH state provide:
1. State identification: id (0, 1, 2, ...), name, description, range or boundary description.
2. Detection logic: a condition over application variables that holds exactly in this state, using only variable names, literals, comparison operators (=== == !== != < <= > >=), boolean operators (&& || !), and parentheses. No function calls.
3. DOM-based detection fallback: visible elements, hidden elements, classes present, visible text content, each with CSS selectors. This is critical for when variables are inaccessible due to scope.
4. A color theme (primary, active, border as rgba or hex).
5. Interactive elements visible or active in the state.
6. Key variables with current value, type, and purpose.

Return a valid JSON object with this EXACT structure:

{
  "metadata": {
    "total_states": <number>,
    "state_variable": "<primary variable that tracks state>",
    "primary_counter": "<main counter variable if exists>",
    "content_selector": "<CSS selector of the primary content container>",
    "counter_selector": "<CSS selector of the counter display element, if any>"
  },
  "states": [
    {
      "id": 0,
      "name": "State Name",
      "description": "What this state represents",
      "range_description": "Boundary or range",
      "detection_condition": "stage === 0 && count < 15",
      "dom_detection": {
        "visible_elements": ["#selector1", ".selector2"],
        "hidden_elements": ["#selector3"],
        "has_class": [{"selector": "#element", "class": "active"}],
        "text_content": [{"selector": "#element", "contains": "some text"}]
      },
      "color_theme": {"primary": "rgba(r, g, b, 0.15)", "active": "rgba(r, g, b, 0.3)", "border": "rgba(r, g, b, 0.6)"},
      "interactive_elements": [{"name": "Element Name", "selector": "#id", "type": "button", "visibility": "visible", "state": "enabled", "onclick": "functionName() or null"}],
      "key_variables": [{"name": "variableName", "value": "initial value", "type": "number", "purpose": "What this controls"}]
    }
  ]
}

Code to analyze:

%s

Return ONLY the JSON object, no additional text or explanation.`

// Analyzer produces state schemas from source files.
type Analyzer struct {
	client *genai.Client
	cfg    config.AnalyzerConfig
	log    *zap.Logger
}

// New creates an analyzer. The API key is required; there is no offline
// mode for schema generation.
func New(ctx context.Context, cfg config.AnalyzerConfig, logger *zap.Logger) (*Analyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("analyzer API key is required; set GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Analyzer{client: client, cfg: cfg, log: logger.Named("analyzer")}, nil
}

// AnalyzeFile reads a source file and derives its state schema.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*schemas.StateSchema, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading source file %s: %w", path, err)
	}
	fileType := strings.TrimPrefix(strings.ToUpper(filepath.Ext(path)), ".")
	if fileType == "" {
		fileType = "HTML"
	}
	return a.Analyze(ctx, string(content), fileType)
}

// Analyze derives a state schema from source code. The model's output is
// parsed, validated, and rejected outright on any structural problem; a
// half-usable schema is worse than none.
func (a *Analyzer) Analyze(ctx context.Context, source, fileType string) (*schemas.StateSchema, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	a.log.Info("Analyzing source for behavioral states",
		zap.String("model", a.cfg.Model),
		zap.Int("source_bytes", len(source)))

	prompt := fmt.Sprintf(analysisPromptTemplate, fileType, source)
	temp := float32(0.1)
	resp, err := a.client.Models.GenerateContent(ctx, a.cfg.Model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature:      &temp,
			ResponseMIMEType: "application/json",
		})
	if err != nil {
		return nil, fmt.Errorf("state analysis request failed: %w", err)
	}

	raw := extractJSON(resp.Text())
	var schema schemas.StateSchema
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		return nil, fmt.Errorf("model returned unparseable schema: %w", err)
	}
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("model returned invalid schema: %w", err)
	}

	a.log.Info("State analysis complete",
		zap.Int("states", len(schema.States)),
		zap.String("state_variable", schema.Metadata.StateVariable))
	return &schema, nil
}

// SaveSchema writes the schema to path as indented JSON.
func SaveSchema(schema *schemas.StateSchema, path string) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding schema: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing schema %s: %w", path, err)
	}
	return nil
}

// extractJSON strips markdown code fences the model sometimes wraps its
// answer in, falling back to the outermost brace pair.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
