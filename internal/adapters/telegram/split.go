package telegram

import "strings"

// MessageLimit — предел длины сообщения Telegram в символах.
const MessageLimit = 4096

// SplitMessage режет текст по пределу Telegram.
func SplitMessage(text string) []string {
	return Split(text, MessageLimit)
}

// Split режет текст на части не длиннее limit символов, по возможности по переводам строк.
func Split(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if limit <= 0 {
		limit = MessageLimit
	}

	runes := []rune(trimmed)
	var parts []string
	for start := 0; start < len(runes); {
		end := min(start+limit, len(runes))
		cut := end
		if end < len(runes) {
			if nl := lastNewline(runes[start:end]); nl > 0 {
				cut = start + nl
			}
		}
		if chunk := strings.Trim(string(runes[start:cut]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		start = cut
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}
	return parts
}

// lastNewline возвращает позицию сразу после последнего перевода строки или 0.
func lastNewline(runes []rune) int {
	for i := len(runes); i > 0; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	return 0
}
