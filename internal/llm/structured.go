package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Outcome classifies what came back from a generative call.
type Outcome string

const (
	OutcomeValid       Outcome = "valid"
	OutcomeInvalid     Outcome = "invalid"
	OutcomeUnparseable Outcome = "unparseable"
	OutcomeUnavailable Outcome = "unavailable"
)

// DecodeError is returned when a completion could not be turned into a value.
type DecodeError struct {
	Outcome Outcome
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("structured output %s: %v", e.Outcome, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// OutcomeOf maps an error from Decode or from a provider call to its outcome.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeValid
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return decodeErr.Outcome
	}
	return OutcomeUnavailable
}

// Decode extracts the first JSON object from raw, decodes it into T and runs
// validate on the result. Nothing partial is returned.
func Decode[T any](raw string, validate func(*T) error) (T, error) {
	var zero T

	object, ok := ExtractObject(raw)
	if !ok {
		return zero, &DecodeError{Outcome: OutcomeUnparseable, Err: errors.New("no JSON object in response")}
	}

	var out T
	if err := json.Unmarshal([]byte(object), &out); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return zero, &DecodeError{Outcome: OutcomeUnparseable, Err: err}
		}
		return zero, &DecodeError{Outcome: OutcomeInvalid, Err: err}
	}

	if validate != nil {
		if err := validate(&out); err != nil {
			return zero, &DecodeError{Outcome: OutcomeInvalid, Err: err}
		}
	}
	return out, nil
}

// ExtractObject returns the first balanced top-level JSON object in s, skipping
// markdown code fences and any prose around it.
func ExtractObject(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
