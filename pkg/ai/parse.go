package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFences убирает markdown-ограждения (```json ... ```), которыми
// модели часто оборачивают JSON-ответ.
func StripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Отбрасываем языковую метку после открывающего ограждения
		firstLine := trimmed[:idx]
		if len(firstLine) <= 10 && !strings.ContainsAny(firstLine, "{}[]") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// ParseModelJSON разбирает JSON-ответ модели в целевую структуру,
// предварительно убрав возможные markdown-ограждения.
func ParseModelJSON(raw string, target interface{}) error {
	cleaned := StripCodeFences(raw)
	if err := json.Unmarshal([]byte(cleaned), target); err != nil {
		return fmt.Errorf("failed to parse model JSON response: %w", err)
	}
	return nil
}
