package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTitleEmptyFirstLine(t *testing.T) {
	assert.Equal(t, "Untitled Proposal", ExtractTitle("\nsome body text"))
	assert.Equal(t, "Untitled Proposal", ExtractTitle(""))
}

func TestExtractTitleStripsHeadingMarker(t *testing.T) {
	assert.Equal(t, "Hello", ExtractTitle("# Hello"))
	assert.Equal(t, "Hello", ExtractTitle("## Hello\nbody"))
}

func TestExtractTitleTruncatesAt500(t *testing.T) {
	longLine := strings.Repeat("a", 600)
	got := ExtractTitle(longLine)
	assert.Len(t, got, 503)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("a", 500)+"...", got)
}

func TestExtractTitleLeavesNonHeadingHashUnchanged(t *testing.T) {
	assert.Equal(t, "#nohash here", ExtractTitle("#nohash here"))
}

func TestExtractTitlePassesThroughShortLine(t *testing.T) {
	assert.Equal(t, "Safe Grant", ExtractTitle("# Safe Grant\n0.1 ETH"))
}
