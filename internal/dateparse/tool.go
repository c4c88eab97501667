package dateparse

import (
	"encoding/json"
	"fmt"
	"time"
)

// ToolName identifies the extraction tool in model requests.
const ToolName = "extract_date"

// ToolDescription tells the model when to invoke the tool.
const ToolDescription = "Extract a single future calendar date from a message. " +
	"Returns the date in YYYY-MM-DD form together with a confidence score, " +
	"or hasDate=false when the message names no specific future date. " +
	"Vague references like \"soon\" or \"next week\" do not count."

// ToolInput is the argument payload the model supplies when calling the tool.
type ToolInput struct {
	Text           string `json:"text"`
	CurrentDateISO string `json:"currentDateIso"`
}

// ToolInputSchema returns the JSON schema for the tool's input.
func ToolInputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "The message text to scan for a date.",
			},
			"currentDateIso": map[string]any{
				"type":        "string",
				"description": "The current date in YYYY-MM-DD form; extracted dates must be strictly later.",
			},
		},
		"required": []string{"text", "currentDateIso"},
	}
}

// ExecuteTool runs the extractor against raw tool-call arguments.
//
// The reference date must parse as a strict YYYY-MM-DD value; anything else
// is an error rather than a silent "no date", so a confused model cannot
// smuggle in an unchecked reference.
func ExecuteTool(raw json.RawMessage) (Result, error) {
	var in ToolInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return Result{}, fmt.Errorf("decoding tool input: %w", err)
	}

	reference, err := time.Parse("2006-01-02", in.CurrentDateISO)
	if err != nil {
		return Result{}, fmt.Errorf("invalid currentDateIso %q: %w", in.CurrentDateISO, err)
	}

	return Extract(in.Text, reference), nil
}
