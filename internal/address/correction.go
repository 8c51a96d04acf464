package address

// IsSafeCorrection reports whether a resolver-proposed correction may replace
// what the caller said. It must keep the caller's house number, when one was
// given, and share at least one meaningful word with the original.
func IsSafeCorrection(original, corrected string) bool {
	op := parse(original)
	cp := parse(corrected)
	if cp.norm == "" {
		return false
	}
	if op.house != "" && op.house != cp.house {
		return false
	}

	words := meaningfulWords(cp.tokens)
	for w := range meaningfulWords(op.tokens) {
		if words[w] {
			return true
		}
	}
	return false
}

// HouseNumber returns the normalized house number in s, if any.
func HouseNumber(s string) string {
	return parse(s).house
}
