package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrSchemaValidation marks model output that is not valid JSON or fails validation
	ErrSchemaValidation = errors.New("model output failed schema validation")
	// ErrTransientCall marks a failed call to an upstream (network, throttling, open breaker)
	ErrTransientCall = errors.New("transient upstream call failure")
	// ErrSymbolNotFound marks an upstream answering that it has no data for a symbol
	ErrSymbolNotFound = errors.New("symbol not found")
)

// Checker is implemented by outputs with rules that struct tags cannot express
type Checker interface {
	Check() error
}

var validate = validator.New()

// DecodeStructured parses model text into result and validates it.
// Markdown code fences and prose around the outermost JSON object are ignored.
func DecodeStructured(text string, result any) error {
	payload := extractJSON(text)
	if payload == "" {
		return fmt.Errorf("%w: no JSON object in response", ErrSchemaValidation)
	}

	if err := json.Unmarshal([]byte(payload), result); err != nil {
		return fmt.Errorf("%w: failed to parse response as JSON: %v", ErrSchemaValidation, err)
	}

	if err := validate.Struct(result); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			return fmt.Errorf("%w: %v", ErrSchemaValidation, err)
		}
	}

	if c, ok := result.(Checker); ok {
		if err := c.Check(); err != nil {
			return fmt.Errorf("%w: %v", ErrSchemaValidation, err)
		}
	}
	return nil
}

func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}
