package domain

import "strings"

const (
	maxTitleLength  = 500
	untitledDefault = "Untitled Proposal"
)

// ExtractTitle derives a proposal's title from its raw description,
// deterministically, per §4.3: split on the first newline; strip a leading
// markdown heading marker; truncate to 500 characters (appending "..." when
// truncated); fall back to "Untitled Proposal" when nothing is left.
func ExtractTitle(description string) string {
	firstLine := description
	if idx := strings.IndexByte(description, '\n'); idx >= 0 {
		firstLine = description[:idx]
	}

	firstLine = stripHeadingMarker(firstLine)
	firstLine = strings.TrimSpace(firstLine)

	if firstLine == "" {
		return untitledDefault
	}

	runes := []rune(firstLine)
	if len(runes) > maxTitleLength {
		return string(runes[:maxTitleLength]) + "..."
	}
	return firstLine
}

// stripHeadingMarker removes a leading run of '#' characters followed by
// whitespace, the markdown ATX-heading convention.
func stripHeadingMarker(line string) string {
	i := 0
	for i < len(line) && line[i] == '#' {
		i++
	}
	if i == 0 {
		return line
	}
	rest := line[i:]
	trimmedRest := strings.TrimLeft(rest, " \t")
	if trimmedRest == rest {
		// No whitespace followed the '#' run; this wasn't a heading marker.
		return line
	}
	return trimmedRest
}
