package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioworks/portfolio-assistant/internal/model"
	"github.com/folioworks/portfolio-assistant/internal/storage"
	"github.com/folioworks/portfolio-assistant/pkg/logger"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *storage.MemStore) {
	t.Helper()
	store := storage.NewMemStore()
	store.PutPortfolioOwner(&model.PortfolioOwner{ID: "own_1", UserID: "u_1", FullName: "Sam Learner"})
	return NewDispatcher(store, logger.NewNop()), store
}

func decodeResult(t *testing.T, res model.ToolResult) (success bool, message, errText string) {
	t.Helper()
	var payload struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Output), &payload))
	return payload.Success, payload.Message, payload.Error
}

func TestExecuteUnknownTool(t *testing.T) {
	d, _ := newTestDispatcher(t)

	res := d.Execute(context.Background(), "u_1", model.ToolCall{ID: "call_1", Name: "delete_everything"})

	assert.Equal(t, "call_1", res.ToolCallID)
	success, _, errText := decodeResult(t, res)
	assert.False(t, success)
	assert.Contains(t, errText, "unknown tool")
}

func TestExecuteNoPortfolioProfile(t *testing.T) {
	d := NewDispatcher(storage.NewMemStore(), logger.NewNop())

	res := d.Execute(context.Background(), "u_missing", model.ToolCall{
		ID:        "call_1",
		Name:      ToolRecordQualification,
		Arguments: `{"course_name":"First Aid","institution":"Red Cross"}`,
	})

	success, _, errText := decodeResult(t, res)
	assert.False(t, success)
	assert.Contains(t, errText, "no portfolio profile")
}

func TestExecuteInvalidArguments(t *testing.T) {
	d, _ := newTestDispatcher(t)

	res := d.Execute(context.Background(), "u_1", model.ToolCall{
		ID:        "call_1",
		Name:      ToolRecordQualification,
		Arguments: `not json`,
	})

	success, _, errText := decodeResult(t, res)
	assert.False(t, success)
	assert.Contains(t, errText, "invalid arguments")
}

func TestRecordQualification(t *testing.T) {
	d, store := newTestDispatcher(t)

	res := d.Execute(context.Background(), "u_1", model.ToolCall{
		ID:        "call_1",
		Name:      ToolRecordQualification,
		Arguments: `{"course_name":"Certificate III in Individual Support","institution":"TAFE","completion_date":"2026-06-30"}`,
	})

	success, message, _ := decodeResult(t, res)
	require.True(t, success)
	assert.Contains(t, message, "Certificate III in Individual Support")

	quals := store.Qualifications("own_1")
	require.Len(t, quals, 1)
	assert.Equal(t, "TAFE", quals[0].Institution)
	assert.Equal(t, "2026-06-30", quals[0].CompletionDate)
}

func TestRecordQualificationMissingFields(t *testing.T) {
	d, store := newTestDispatcher(t)

	res := d.Execute(context.Background(), "u_1", model.ToolCall{
		ID:        "call_1",
		Name:      ToolRecordQualification,
		Arguments: `{"institution":"TAFE"}`,
	})

	success, _, errText := decodeResult(t, res)
	assert.False(t, success)
	assert.Contains(t, errText, "course_name is required")
	assert.Empty(t, store.Qualifications("own_1"))
}

func TestRecordActivity(t *testing.T) {
	d, store := newTestDispatcher(t)

	res := d.Execute(context.Background(), "u_1", model.ToolCall{
		ID:        "call_1",
		Name:      ToolRecordActivity,
		Arguments: `{"title":"Shadowing shift","description":"aged care facility","date":"2026-08-12","hours":6.5}`,
	})

	success, _, _ := decodeResult(t, res)
	require.True(t, success)

	acts := store.Activities("own_1")
	require.Len(t, acts, 1)
	assert.Equal(t, 6.5, acts[0].Hours)
}

func TestRecordActivityNegativeHours(t *testing.T) {
	d, _ := newTestDispatcher(t)

	res := d.Execute(context.Background(), "u_1", model.ToolCall{
		ID:        "call_1",
		Name:      ToolRecordActivity,
		Arguments: `{"title":"Shift","hours":-2}`,
	})

	success, _, errText := decodeResult(t, res)
	assert.False(t, success)
	assert.Contains(t, errText, "hours")
}

func TestUpdateCompetency(t *testing.T) {
	d, store := newTestDispatcher(t)
	ctx := context.Background()

	res := d.Execute(ctx, "u_1", model.ToolCall{
		ID:        "call_1",
		Name:      ToolUpdateCompetency,
		Arguments: `{"competency":"wound care","status":"in_progress"}`,
	})
	success, _, _ := decodeResult(t, res)
	require.True(t, success)

	// A second call moves the same competency rather than adding a row.
	res = d.Execute(ctx, "u_1", model.ToolCall{
		ID:        "call_2",
		Name:      ToolUpdateCompetency,
		Arguments: `{"competency":"wound care","status":"achieved"}`,
	})
	success, message, _ := decodeResult(t, res)
	require.True(t, success)
	assert.Contains(t, message, "achieved")

	c, ok := store.Competency("own_1", "wound care")
	require.True(t, ok)
	assert.Equal(t, model.CompetencyAchieved, c.Status)
}

func TestUpdateCompetencyRejectsUnknownStatus(t *testing.T) {
	d, _ := newTestDispatcher(t)

	res := d.Execute(context.Background(), "u_1", model.ToolCall{
		ID:        "call_1",
		Name:      ToolUpdateCompetency,
		Arguments: `{"competency":"wound care","status":"done"}`,
	})

	success, _, errText := decodeResult(t, res)
	assert.False(t, success)
	assert.Contains(t, errText, "status must be one of")
}

func TestDefinitionsCoverDispatchableTools(t *testing.T) {
	defs := Definitions()
	require.Len(t, defs, 3)

	d, _ := newTestDispatcher(t)
	for _, def := range defs {
		require.NotNil(t, def.Function)
		_, ok := d.handlers[def.Function.Name]
		assert.True(t, ok, "definition %q has no handler", def.Function.Name)
	}
}
