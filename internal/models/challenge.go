package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ContentType discriminates challenge variants.
type ContentType string

// Supported challenge content types.
const (
	ContentTypeSQL        ContentType = "sql"
	ContentTypeMCQ        ContentType = "mcq"
	ContentTypeDebug      ContentType = "debug"
	ContentTypeCompletion ContentType = "completion"
)

// Valid reports whether t is a known content type.
func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeSQL, ContentTypeMCQ, ContentTypeDebug, ContentTypeCompletion:
		return true
	}
	return false
}

// ErrInvalidChallenge is wrapped by every challenge validation failure.
var ErrInvalidChallenge = errors.New("invalid challenge")

// TableSchema describes one table of a challenge's sample database.
type TableSchema struct {
	Name    string          `json:"name"`
	Columns []ColumnSchema  `json:"columns"`
	Rows    [][]interface{} `json:"rows,omitempty"`
}

// ColumnSchema is a single column definition.
type ColumnSchema struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ChallengeBody is implemented by each challenge variant.
type ChallengeBody interface {
	Kind() ContentType
	Validate() error
}

// SQLBody asks the learner to write a query against the schema.
type SQLBody struct {
	Schema        []TableSchema `json:"schema"`
	ExpectedQuery string        `json:"expected_query,omitempty"`
}

// MCQBody is a multiple choice question.
type MCQBody struct {
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty"`
}

// DebugBody asks the learner to fix a broken query.
type DebugBody struct {
	Schema      []TableSchema `json:"schema"`
	BrokenQuery string        `json:"broken_query"`
}

// CompletionBody asks the learner to fill the blanks of a query template.
type CompletionBody struct {
	Schema        []TableSchema `json:"schema"`
	QueryTemplate string        `json:"query_template"`
}

func (SQLBody) Kind() ContentType        { return ContentTypeSQL }
func (MCQBody) Kind() ContentType        { return ContentTypeMCQ }
func (DebugBody) Kind() ContentType      { return ContentTypeDebug }
func (CompletionBody) Kind() ContentType { return ContentTypeCompletion }

func (b SQLBody) Validate() error {
	return validateSchema(b.Schema)
}

func (b MCQBody) Validate() error {
	if len(b.Options) < 2 {
		return fmt.Errorf("%w: mcq needs at least two options", ErrInvalidChallenge)
	}
	for i, opt := range b.Options {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("%w: mcq option %d is empty", ErrInvalidChallenge, i)
		}
	}
	if b.CorrectAnswer < 0 || b.CorrectAnswer >= len(b.Options) {
		return fmt.Errorf("%w: correct_answer %d out of range", ErrInvalidChallenge, b.CorrectAnswer)
	}
	return nil
}

func (b DebugBody) Validate() error {
	if strings.TrimSpace(b.BrokenQuery) == "" {
		return fmt.Errorf("%w: debug challenge needs broken_query", ErrInvalidChallenge)
	}
	return validateSchema(b.Schema)
}

func (b CompletionBody) Validate() error {
	if !strings.Contains(b.QueryTemplate, "___") {
		return fmt.Errorf("%w: query_template must contain a ___ blank", ErrInvalidChallenge)
	}
	return validateSchema(b.Schema)
}

func validateSchema(tables []TableSchema) error {
	if len(tables) == 0 {
		return fmt.Errorf("%w: schema needs at least one table", ErrInvalidChallenge)
	}
	for _, t := range tables {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("%w: table without name", ErrInvalidChallenge)
		}
		if len(t.Columns) == 0 {
			return fmt.Errorf("%w: table %s has no columns", ErrInvalidChallenge, t.Name)
		}
		for _, row := range t.Rows {
			if len(row) != len(t.Columns) {
				return fmt.Errorf("%w: table %s row width %d != %d columns", ErrInvalidChallenge, t.Name, len(row), len(t.Columns))
			}
		}
	}
	return nil
}

// Challenge is the tagged union stored on a module. Body holds exactly one variant
// and its Kind always equals Type once decoded.
type Challenge struct {
	Type             ContentType
	Title            string
	Scenario         string
	Task             string
	RequiredConcepts []string
	Body             ChallengeBody
}

type challengeEnvelope struct {
	Type             ContentType `json:"type"`
	Title            string      `json:"title"`
	Scenario         string      `json:"scenario"`
	Task             string      `json:"task"`
	RequiredConcepts []string    `json:"required_concepts,omitempty"`
}

// Validate checks the envelope and the variant payload.
func (c *Challenge) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: empty", ErrInvalidChallenge)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidChallenge, c.Type)
	}
	if strings.TrimSpace(c.Title) == "" || strings.TrimSpace(c.Task) == "" {
		return fmt.Errorf("%w: title and task are required", ErrInvalidChallenge)
	}
	if c.Body == nil {
		return fmt.Errorf("%w: missing %s payload", ErrInvalidChallenge, c.Type)
	}
	if c.Body.Kind() != c.Type {
		return fmt.Errorf("%w: payload kind %s does not match type %s", ErrInvalidChallenge, c.Body.Kind(), c.Type)
	}
	return c.Body.Validate()
}

// MarshalJSON flattens the envelope and the variant into one object.
func (c Challenge) MarshalJSON() ([]byte, error) {
	envelope, err := json.Marshal(challengeEnvelope{
		Type:             c.Type,
		Title:            c.Title,
		Scenario:         c.Scenario,
		Task:             c.Task,
		RequiredConcepts: c.RequiredConcepts,
	})
	if err != nil {
		return nil, err
	}
	if c.Body == nil {
		return envelope, nil
	}
	body, err := json.Marshal(c.Body)
	if err != nil {
		return nil, err
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(envelope, &merged); err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the envelope and dispatches on type to the variant.
func (c *Challenge) UnmarshalJSON(data []byte) error {
	var env challengeEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	var body ChallengeBody
	switch env.Type {
	case ContentTypeSQL:
		var b SQLBody
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		body = b
	case ContentTypeMCQ:
		var b MCQBody
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		body = b
	case ContentTypeDebug:
		var b DebugBody
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		body = b
	case ContentTypeCompletion:
		var b CompletionBody
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		body = b
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidChallenge, env.Type)
	}
	*c = Challenge{
		Type:             env.Type,
		Title:            env.Title,
		Scenario:         env.Scenario,
		Task:             env.Task,
		RequiredConcepts: env.RequiredConcepts,
		Body:             body,
	}
	return nil
}

// ParseChallenge decodes and validates raw JSON.
func ParseChallenge(raw []byte) (*Challenge, error) {
	var c Challenge
	if err := json.Unmarshal(raw, &c); err != nil {
		if errors.Is(err, ErrInvalidChallenge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidChallenge, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Value stores the challenge as JSONB.
func (c *Challenge) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

// Scan loads the challenge from a JSONB column.
func (c *Challenge) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan challenge: unsupported type %T", src)
	}
	return json.Unmarshal(raw, c)
}

// MCQ returns the multiple choice payload when the challenge is one.
func (c *Challenge) MCQ() (MCQBody, bool) {
	if c == nil {
		return MCQBody{}, false
	}
	b, ok := c.Body.(MCQBody)
	return b, ok
}

// GradeResult is the verdict for one submitted answer.
type GradeResult struct {
	IsCorrect  bool                     `json:"is_correct"`
	Feedback   string                   `json:"feedback"`
	Tip        string                   `json:"tip,omitempty"`
	Points     int                      `json:"points"`
	ResultRows []map[string]interface{} `json:"result_rows,omitempty"`
}
