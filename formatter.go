package main

import "strings"

// Telegram hard limits on outbound payloads.
const (
	captionLimit   = 1024 // photo caption
	messageLimit   = 4096 // text message
	plainTextLimit = 4000 // body budget for the plain-text last resort
)

// ComposeMessage renders a post as "*title*\n\ntext" within the given
// character budget. An over-budget result keeps the title block intact,
// truncates the body and appends an ellipsis. Pure: no I/O, same input
// always yields the same output.
func ComposeMessage(title, text string, limit int) string {
	title = strings.TrimSpace(title)
	text = strings.TrimSpace(text)

	titlePart := "*" + title + "*\n\n"
	message := titlePart + text

	if runeLen(message) <= limit {
		return message
	}

	remaining := limit - runeLen(titlePart) - 3 // reserve room for the ellipsis
	if remaining < 0 {
		remaining = 0
	}
	return titlePart + truncateRunes(text, remaining) + "..."
}

// ComposePlainText renders the no-markdown last resort payload.
func ComposePlainText(title, text string) string {
	return strings.TrimSpace(title) + "\n\n" + truncateRunes(strings.TrimSpace(text), plainTextLimit)
}

func runeLen(s string) int {
	return len([]rune(s))
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
