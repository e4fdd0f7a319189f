package tools

import (
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// Definitions returns the function schemas attached to every provider
// run. Keep these in sync with the argument structs in dispatcher.go.
func Definitions() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolRecordQualification,
				Description: "Record a course or certification the user has completed.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"course_name": {
							Type:        jsonschema.String,
							Description: "Name of the course or certification",
						},
						"institution": {
							Type:        jsonschema.String,
							Description: "Institution that delivered it",
						},
						"completion_date": {
							Type:        jsonschema.String,
							Description: "When it was completed, as stated by the user",
						},
					},
					Required: []string{"course_name", "institution"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolRecordActivity,
				Description: "Record a professional-development activity the user took part in.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"title": {
							Type:        jsonschema.String,
							Description: "Short title of the activity",
						},
						"description": {
							Type:        jsonschema.String,
							Description: "What the activity involved",
						},
						"date": {
							Type:        jsonschema.String,
							Description: "When the activity happened",
						},
						"hours": {
							Type:        jsonschema.Number,
							Description: "Time spent, in hours",
						},
					},
					Required: []string{"title"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolUpdateCompetency,
				Description: "Update the status of a tracked competency for the user.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"competency": {
							Type:        jsonschema.String,
							Description: "Name of the competency",
						},
						"status": {
							Type:        jsonschema.String,
							Enum:        []string{"not_started", "in_progress", "achieved"},
							Description: "New status",
						},
					},
					Required: []string{"competency", "status"},
				},
			},
		},
	}
}
