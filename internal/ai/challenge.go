package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/sql-academy-api/internal/models"
)

// GenerateRequest describes the challenge an author wants.
type GenerateRequest struct {
	Topic       string             `json:"topic" validate:"required"`
	Industry    string             `json:"industry"`
	Difficulty  string             `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced"`
	ContentType models.ContentType `json:"content_type" validate:"required,oneof=sql mcq debug completion"`
	Context     string             `json:"context"`
}

// GenerateChallenge asks the model for a challenge and validates the result.
func (c *Client) GenerateChallenge(ctx context.Context, req GenerateRequest) (*models.Challenge, error) {
	var raw json.RawMessage
	if err := c.generateJSON(ctx, challengePrompt(req), 0.7, &raw); err != nil {
		return nil, err
	}

	// The model does not always echo the type back.
	var probe struct {
		Type models.ContentType `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Type == "" {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err == nil {
			fields["type"], _ = json.Marshal(req.ContentType)
			raw, _ = json.Marshal(fields)
		}
	}

	challenge, err := models.ParseChallenge(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if challenge.Type != req.ContentType {
		return nil, fmt.Errorf("%w: asked for %s, got %s", ErrMalformedOutput, req.ContentType, challenge.Type)
	}
	return challenge, nil
}

// Grade asks the model to judge a free-form answer.
func (c *Client) Grade(ctx context.Context, challenge *models.Challenge, answer string) (*models.GradeResult, error) {
	if challenge == nil {
		return nil, errors.New("grade: challenge is required")
	}
	prompt, err := gradePrompt(challenge, answer)
	if err != nil {
		return nil, err
	}

	var result models.GradeResult
	if err := c.generateJSON(ctx, prompt, 0.2, &result); err != nil {
		return nil, err
	}
	if result.Points < 0 {
		result.Points = 0
	}
	if !result.IsCorrect {
		result.Points = 0
	}
	return &result, nil
}

func challengePrompt(req GenerateRequest) string {
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = "beginner"
	}
	industry := req.Industry
	if industry == "" {
		industry = "general business"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are writing a %s SQL exercise for the %s industry.\n", difficulty, industry)
	fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	if req.Context != "" {
		fmt.Fprintf(&b, "Course context: %s\n", req.Context)
	}
	b.WriteString("Respond with a single JSON object with these fields:\n")
	fmt.Fprintf(&b, `  "type": %q, "title", "scenario", "task", "required_concepts" (array of strings)`+"\n", req.ContentType)

	switch req.ContentType {
	case models.ContentTypeMCQ:
		b.WriteString(`  "options" (array of 4 strings), "correct_answer" (zero-based index), "explanation"` + "\n")
	case models.ContentTypeDebug:
		b.WriteString(`  "schema" (tables with name, columns [{name,type}], rows), "broken_query" (a query with one bug)` + "\n")
	case models.ContentTypeCompletion:
		b.WriteString(`  "schema" (tables with name, columns [{name,type}], rows), "query_template" (a query with ___ marking each blank)` + "\n")
	default:
		b.WriteString(`  "schema" (tables with name, columns [{name,type}], rows), "expected_query"` + "\n")
	}
	b.WriteString("Keep sample tables under 8 rows. Do not wrap the JSON in markdown.")
	return b.String()
}

func gradePrompt(challenge *models.Challenge, answer string) (string, error) {
	payload, err := json.Marshal(challenge)
	if err != nil {
		return "", fmt.Errorf("encode challenge: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are grading a learner's answer to a SQL exercise.\n")
	fmt.Fprintf(&b, "Exercise JSON: %s\n", payload)
	fmt.Fprintf(&b, "Learner answer:\n%s\n", answer)
	b.WriteString("Run the answer mentally against the sample data. Respond with a JSON object: ")
	b.WriteString(`{"is_correct": bool, "feedback": string, "tip": string, "points": integer 0-100, `)
	b.WriteString(`"result_rows": array of objects with the rows the answer would return}.`)
	b.WriteString(" Accept any query that produces the correct result, not only the expected query.")
	return b.String(), nil
}
