package scene

import "fmt"

// Fingerprint is a cheap summary of a document's active content: the number
// of non-deleted elements and the sum of their versions. It is a heuristic,
// not a digest — two distinct states whose version deltas cancel in the sum
// produce equal fingerprints. Echo suppression accepts those collisions: a
// wrongly suppressed edit delays convergence but never loses it, because the
// next differing edit flushes through.
type Fingerprint struct {
	Count      int   `json:"count"`
	VersionSum int64 `json:"versionSum"`
}

// FingerprintOf computes the fingerprint of an element sequence. Deleted
// elements are excluded; a missing version counts as 0. The result depends
// only on the (isDeleted, version) pairs, never on element order.
func FingerprintOf(elements []Element) Fingerprint {
	var fp Fingerprint
	for _, el := range elements {
		if el.Deleted() {
			continue
		}
		fp.Count++
		fp.VersionSum += el.Version()
	}
	return fp
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%d/%d", f.Count, f.VersionSum)
}
