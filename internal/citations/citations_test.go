package citations

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeStripsTrackingAndSortsQuery(t *testing.T) {
	got := Normalize("HTTPS://WWW.Example.com/Path/?utm_source=x&b=2&a=1#frag")
	require.Equal(t, "https://example.com/Path?a=1&b=2", got)
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := "HTTPS://WWW.Example.com/Path/?utm_source=x&b=2&a=1#frag"
	once := Normalize(raw)
	twice := Normalize(once)
	require.Equal(t, once, twice)
}

func TestDedupeKeepsFirstTitle(t *testing.T) {
	in := []Citation{
		{Title: "A", URL: "https://www.example.com/x?utm_source=y"},
		{Title: "A dup", URL: "https://example.com/x"},
	}
	out := Dedupe(in)
	require.Len(t, out, 1)
	require.Equal(t, "A", out[0].Title)
}

func TestMergePreservesFirstOccurrence(t *testing.T) {
	a := []Citation{{Title: "first", URL: "https://example.com/x"}}
	b := []Citation{{Title: "second", URL: "https://example.com/x"}, {Title: "other", URL: "https://example.com/y"}}
	out := Merge(a, b)
	require.Len(t, out, 2)
	require.Equal(t, "first", out[0].Title)
}

func TestExtractFromTextMarkdownAndBare(t *testing.T) {
	text := "see [docs](https://example.com/docs) and also https://example.org/raw for more"
	out := ExtractFromText(text)
	require.Len(t, out, 2)
	require.Equal(t, "docs", out[0].Title)
	require.Equal(t, "example.org", out[1].Title)
}

func TestExtractFromTextEmpty(t *testing.T) {
	require.Nil(t, ExtractFromText(""))
}
