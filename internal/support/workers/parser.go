package workers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gridassist/server/internal/core/errx"
)

// basic safety limit to avoid pathological model outputs
const maxOutputLen = 128 * 1024

// CleanJSON strips markdown code fences and surrounding prose from a model
// reply, leaving the outermost JSON object. Models under structured-output
// instructions still wrap JSON in ```json fences often enough that this is
// the first thing to try.
func CleanJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[3:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	s = strings.TrimSpace(s)

	// Fall back to the widest brace span when prose surrounds the object.
	if !strings.HasPrefix(s, "{") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start >= 0 && end > start {
			s = s[start : end+1]
		}
	}
	return s
}

// DecodeInto parses a worker reply into the expected output shape. Failures
// are recoverable (errx.ErrWorkerOutput): the caller retries within the
// worker's retry budget rather than failing the turn.
func DecodeInto(content string, v any) error {
	if len(content) > maxOutputLen {
		content = content[:maxOutputLen]
	}
	cleaned := CleanJSON(content)
	if cleaned == "" {
		return errx.WrapWorkerOutput(fmt.Errorf("empty output"))
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return errx.WrapWorkerOutput(err)
	}
	return nil
}
