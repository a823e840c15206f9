package t140

import "strings"

// Backspace is the T.140 erase character.
const Backspace = '\b'

// ProcessBackspaces applies erase characters (BS and DEL) inside text.
// Each one removes the preceding character of the same chunk. Erases that
// reach past the start of the chunk refer to text already transmitted and
// are emitted as leading BS characters for the receiver to apply.
func ProcessBackspaces(text string) string {
	if !strings.ContainsAny(text, "\b\x7f") {
		return text
	}
	out := make([]rune, 0, len(text))
	pending := 0
	for _, r := range text {
		if r == '\b' || r == 0x7f {
			if len(out) > 0 {
				out = out[:len(out)-1]
			} else {
				pending++
			}
			continue
		}
		out = append(out, r)
	}
	return strings.Repeat(string(Backspace), pending) + string(out)
}
