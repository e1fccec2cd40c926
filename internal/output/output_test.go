package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/chatsearch/internal/search"
)

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a status message
	w.Status("🔍", "Connecting to daemon...")

	// Then: output contains icon and message
	assert.Equal(t, "🔍 Connecting to daemon...\n", buf.String())
}

func TestWriter_Status_NoIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Status("", "detail")

	assert.Equal(t, "   detail\n", buf.String())
}

func TestWriter_Levels(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Successf("imported %d", 3)
	w.Warningf("skipped %d", 1)
	w.Errorf("failed %d", 2)

	out := buf.String()
	assert.Contains(t, out, "✅ imported 3")
	assert.Contains(t, out, "⚠️  skipped 1")
	assert.Contains(t, out, "❌ failed 2")
}

func TestWriter_JSON_KeepsMarkup(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	require.NoError(t, w.JSON(map[string]string{"text": "<b>&</b>"}))

	assert.Contains(t, buf.String(), `"text": "<b>&</b>"`)
}

func TestWriter_Result_ListsHits(t *testing.T) {
	// Given: the first of two pages
	buf := &bytes.Buffer{}
	w := New(buf).WithLocation(time.UTC)
	res := &search.Result{
		Query:    "cat",
		Page:     1,
		PageSize: 2,
		Total:    3,
		Hits: []search.Hit{
			{MessageID: 3, Text: "a cat\nsat", Author: "Alice", Timestamp: time.Date(2024, 1, 2, 15, 4, 0, 0, time.UTC), Permalink: "https://t.me/c/42/3"},
			{MessageID: 1, Text: "cat", Author: "Bob", Timestamp: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
		},
	}

	// When: printing
	w.Result(res)

	// Then: header, numbered hits and a pointer to the next page appear
	out := buf.String()
	assert.Contains(t, out, `3 results for "cat" (page 1/2)`)
	assert.Contains(t, out, "  1. [2024/01/02 15:04] Alice")
	assert.Contains(t, out, "     a cat sat")
	assert.Contains(t, out, "     https://t.me/c/42/3")
	assert.Contains(t, out, "  2. [2024/01/01 09:00] Bob")
	assert.Contains(t, out, "more: --page 2")
}

func TestWriter_Result_LastPageHasNoMore(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf).WithLocation(time.UTC)

	w.Result(&search.Result{Query: "cat", Page: 2, PageSize: 2, Total: 3, Hits: []search.Hit{{MessageID: 1, Text: "cat"}}})

	assert.Contains(t, buf.String(), "  3. [")
	assert.NotContains(t, buf.String(), "more:")
}

func TestWriter_Result_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Result(&search.Result{Query: "dog", Page: 1, PageSize: 10})

	assert.Equal(t, "🔍 no result found for \"dog\"\n", buf.String())
}

func TestSnippet_TruncatesAtRuneBoundary(t *testing.T) {
	long := strings.Repeat("猫", snippetRunes+5)

	got := snippet(long)

	assert.Equal(t, snippetRunes+1, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
