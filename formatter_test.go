package main

import (
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestComposeMessageShortFitsExactly(t *testing.T) {
	got := ComposeMessage("Hello", "World", captionLimit)
	assert.Equal(t, "*Hello*\n\nWorld", got)
}

func TestComposeMessageTruncatesOverBudget(t *testing.T) {
	title := "Breaking News"
	text := strings.Repeat("a", 2000)

	got := ComposeMessage(title, text, captionLimit)

	if runeLen(got) > captionLimit {
		t.Fatalf("caption length %d exceeds limit %d", runeLen(got), captionLimit)
	}
	assert.Equal(t, runeLen(got), captionLimit)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("truncated caption must end with ellipsis, got %q", got[len(got)-10:])
	}
	titlePart := "*" + title + "*\n\n"
	if !strings.HasPrefix(got, titlePart) {
		t.Fatalf("truncated caption must preserve the title block")
	}
}

func TestComposeMessagePreservesTitleBlockLength(t *testing.T) {
	title := "T"
	text := strings.Repeat("x", 5000)

	got := ComposeMessage(title, text, captionLimit)

	// First len(title)+4 characters are exactly *title*\n\n
	prefix := string([]rune(got)[:runeLen(title)+4])
	assert.Equal(t, "*"+title+"*\n\n", prefix)
}

func TestComposeMessageBoundary(t *testing.T) {
	title := "T"
	// title part is 5 runes, so a body of limit-5 fits exactly
	text := strings.Repeat("b", captionLimit-5)

	got := ComposeMessage(title, text, captionLimit)

	assert.Equal(t, "*T*\n\n"+text, got)
	if strings.HasSuffix(got, "...") {
		t.Fatal("message at the exact budget must not be truncated")
	}
}

func TestComposeMessageIsPure(t *testing.T) {
	title := "Idempotent"
	text := strings.Repeat("y", 3000)

	first := ComposeMessage(title, text, messageLimit)
	second := ComposeMessage(title, text, messageLimit)

	assert.Equal(t, first, second)
}

func TestComposeMessageTrimsInput(t *testing.T) {
	got := ComposeMessage("  Title  ", "  body  ", captionLimit)
	assert.Equal(t, "*Title*\n\nbody", got)
}

func TestComposePlainTextTruncatesBody(t *testing.T) {
	title := "Plain"
	text := strings.Repeat("z", 5000)

	got := ComposePlainText(title, text)

	assert.Equal(t, "Plain\n\n"+strings.Repeat("z", plainTextLimit), got)
}

func TestComposePlainTextNoMarkdown(t *testing.T) {
	got := ComposePlainText("Title", "body")
	assert.Equal(t, "Title\n\nbody", got)
}
