package executor

import (
	"fmt"

	"lukechampine.com/blake3"
)

// synthesizeReportHash derives a deterministic report hash for an
// analysis that didn't supply one, per §4.5 step 6: blake3 over a fixed
// string built from the analysis id and its creation timestamp, the same
// fast-digest choice the teacher's evidence fingerprinting uses for
// internal, non-adversarial proof material.
func synthesizeReportHash(analysisID string, createdAtUnixNano int64) [32]byte {
	input := fmt.Sprintf("analysis-%s-%d", analysisID, createdAtUnixNano)
	return blake3.Sum256([]byte(input))
}
