// internal/analyzer/analyzer_test.go
package analyzer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stagehand/api/schemas"
	"github.com/xkilldash9x/stagehand/internal/config"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), config.AnalyzerConfig{}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"fenced json", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fenced no language", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"leading prose", `Here is the schema: {"a": 1} Done.`, `{"a": 1}`},
		{"whitespace", "  {\"a\": 1}\n", `{"a": 1}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractJSON(tc.in))
		})
	}
}

func TestSaveSchema(t *testing.T) {
	schema := &schemas.StateSchema{
		Metadata: schemas.SchemaMetadata{TotalStates: 1, StateVariable: "stage"},
		States: []schemas.StateDefinition{
			{ID: 0, Name: "Idle", DetectionCondition: "stage === 0"},
		},
	}

	path := filepath.Join(t.TempDir(), "states_schema.json")
	require.NoError(t, SaveSchema(schema, path))

	loaded, err := schemas.LoadStateSchema(path)
	require.NoError(t, err)
	assert.Equal(t, "stage", loaded.Metadata.StateVariable)
}
