package ai

import (
	"github.com/pkoukk/tiktoken-go"
)

// CountTokens возвращает количество токенов в тексте для заданной модели.
// При неизвестной модели используется кодировка cl100k_base; при любой
// ошибке возвращается 0, чтобы учет токенов не ломал конвейер.
func CountTokens(model, text string) int {
	if text == "" {
		return 0
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0
		}
	}

	return len(enc.Encode(text, nil, nil))
}
