// Package tools dispatches provider tool calls to portfolio side
// effects. Every outcome, success or failure, is a structured payload
// the model can narrate; raw errors never cross this boundary.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/folioworks/portfolio-assistant/internal/model"
	"github.com/folioworks/portfolio-assistant/internal/storage"
	"github.com/folioworks/portfolio-assistant/pkg/logger"
	"github.com/folioworks/portfolio-assistant/pkg/metrics"
)

// Tool names form a closed set; unknown names get a structured rejection.
const (
	ToolRecordQualification = "record_qualification"
	ToolRecordActivity      = "record_activity"
	ToolUpdateCompetency    = "update_competency"
)

type handlerFunc func(ctx context.Context, owner *model.PortfolioOwner, args json.RawMessage) (string, error)

// Dispatcher executes tool calls against the storage collaborator.
type Dispatcher struct {
	store    storage.Store
	log      *logger.Logger
	handlers map[string]handlerFunc
}

// NewDispatcher creates a dispatcher over the closed tool set.
func NewDispatcher(store storage.Store, log *logger.Logger) *Dispatcher {
	d := &Dispatcher{
		store: store,
		log:   log.With("component", "tool_dispatcher"),
	}
	d.handlers = map[string]handlerFunc{
		ToolRecordQualification: d.recordQualification,
		ToolRecordActivity:      d.recordActivity,
		ToolUpdateCompetency:    d.updateCompetency,
	}
	return d
}

// Execute runs one tool call for the acting user and always returns a
// result; the dispatcher never aborts the run.
func (d *Dispatcher) Execute(ctx context.Context, userID string, call model.ToolCall) model.ToolResult {
	handler, ok := d.handlers[call.Name]
	if !ok {
		d.log.Warn("unknown tool requested", "tool", call.Name, "tool_call_id", call.ID)
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "unknown").Inc()
		return failure(call.ID, fmt.Sprintf("unknown tool %q", call.Name))
	}

	owner, err := d.store.GetPortfolioOwner(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			metrics.ToolCallsTotal.WithLabelValues(call.Name, "no_profile").Inc()
			return failure(call.ID, "no portfolio profile found for this user; ask them to set one up first")
		}
		d.log.Error("portfolio owner lookup failed", "tool", call.Name, "user_id", userID, "error", err)
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "error").Inc()
		return failure(call.ID, "portfolio lookup failed, try again later")
	}

	message, err := handler(ctx, owner, json.RawMessage(call.Arguments))
	if err != nil {
		d.log.Warn("tool execution failed", "tool", call.Name, "tool_call_id", call.ID, "error", err)
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "error").Inc()
		return failure(call.ID, err.Error())
	}

	metrics.ToolCallsTotal.WithLabelValues(call.Name, "success").Inc()
	return success(call.ID, message)
}

type resultPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func success(toolCallID, message string) model.ToolResult {
	return encode(toolCallID, resultPayload{Success: true, Message: message})
}

func failure(toolCallID, reason string) model.ToolResult {
	return encode(toolCallID, resultPayload{Success: false, Error: reason})
}

func encode(toolCallID string, payload resultPayload) model.ToolResult {
	data, err := json.Marshal(payload)
	if err != nil {
		// The payload is flat strings; this cannot realistically fail.
		data = []byte(`{"success":false,"error":"internal serialization failure"}`)
	}
	return model.ToolResult{ToolCallID: toolCallID, Output: string(data)}
}

type qualificationArgs struct {
	CourseName     string `json:"course_name"`
	Institution    string `json:"institution"`
	CompletionDate string `json:"completion_date"`
}

func (d *Dispatcher) recordQualification(ctx context.Context, owner *model.PortfolioOwner, raw json.RawMessage) (string, error) {
	var args qualificationArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %v", err)
	}
	if strings.TrimSpace(args.CourseName) == "" {
		return "", errors.New("course_name is required")
	}
	if strings.TrimSpace(args.Institution) == "" {
		return "", errors.New("institution is required")
	}

	q := &model.Qualification{
		OwnerID:        owner.ID,
		CourseName:     args.CourseName,
		Institution:    args.Institution,
		CompletionDate: args.CompletionDate,
		CreatedAt:      time.Now(),
	}
	if err := d.store.CreateQualification(ctx, q); err != nil {
		return "", fmt.Errorf("failed to save qualification: %v", err)
	}
	return fmt.Sprintf("recorded qualification %q from %s", args.CourseName, args.Institution), nil
}

type activityArgs struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
	Hours       float64 `json:"hours"`
}

func (d *Dispatcher) recordActivity(ctx context.Context, owner *model.PortfolioOwner, raw json.RawMessage) (string, error) {
	var args activityArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %v", err)
	}
	if strings.TrimSpace(args.Title) == "" {
		return "", errors.New("title is required")
	}
	if args.Hours < 0 {
		return "", errors.New("hours must not be negative")
	}

	a := &model.Activity{
		OwnerID:     owner.ID,
		Title:       args.Title,
		Description: args.Description,
		Date:        args.Date,
		Hours:       args.Hours,
		CreatedAt:   time.Now(),
	}
	if err := d.store.CreateActivity(ctx, a); err != nil {
		return "", fmt.Errorf("failed to save activity: %v", err)
	}
	return fmt.Sprintf("recorded activity %q", args.Title), nil
}

type competencyArgs struct {
	Competency string `json:"competency"`
	Status     string `json:"status"`
}

func (d *Dispatcher) updateCompetency(ctx context.Context, owner *model.PortfolioOwner, raw json.RawMessage) (string, error) {
	var args competencyArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %v", err)
	}
	if strings.TrimSpace(args.Competency) == "" {
		return "", errors.New("competency is required")
	}
	status := model.CompetencyStatus(args.Status)
	if !model.ValidCompetencyStatus(status) {
		return "", fmt.Errorf("status must be one of not_started, in_progress, achieved; got %q", args.Status)
	}

	c := &model.Competency{
		OwnerID: owner.ID,
		Name:    args.Competency,
		Status:  status,
	}
	if err := d.store.UpsertCompetency(ctx, c); err != nil {
		return "", fmt.Errorf("failed to save competency: %v", err)
	}
	return fmt.Sprintf("competency %q set to %s", args.Competency, status), nil
}
