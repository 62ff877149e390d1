package guard

import "strings"

// blockList is the fixed profanity list. Matching is case-insensitive
// substring; masked spans keep their original length.
var blockList = []string{
	"fuck",
	"shit",
	"bitch",
	"asshole",
	"bastard",
	"cunt",
	"dick",
	"slut",
	"whore",
	"nigger",
	"faggot",
	"retard",
}

// asciiLower folds only ASCII letters, so the result is byte-aligned with
// the input regardless of any multi-byte runes around the matches. The block
// list is plain ASCII; full Unicode case folding can change byte lengths
// (U+212A lowers to a 1-byte 'k') and would shift every offset after it.
func asciiLower(text string) string {
	out := []byte(text)
	for i, b := range out {
		if b >= 'A' && b <= 'Z' {
			out[i] = b + ('a' - 'A')
		}
	}
	return string(out)
}

// FilterText masks every block-list match in text with '*' of equal length
// and reports whether anything was masked.
func FilterText(text string) (bool, string) {
	lower := asciiLower(text)
	violated := false
	out := []byte(text)

	for _, word := range blockList {
		from := 0
		for {
			idx := strings.Index(lower[from:], word)
			if idx < 0 {
				break
			}
			start := from + idx
			for i := start; i < start+len(word); i++ {
				out[i] = '*'
			}
			violated = true
			from = start + len(word)
		}
	}
	return violated, string(out)
}

// ContainsProfanity reports a block-list hit without masking. Used for
// identity-defining fields (handles, display names, room names) which are
// rejected outright instead of redacted.
func ContainsProfanity(text string) bool {
	lower := asciiLower(text)
	for _, word := range blockList {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
