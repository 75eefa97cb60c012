package markdown

import "strings"

// rewriteClozes replaces every {{cN::answer}} and {{cN::answer::hint}} with
// <mark>answer</mark>, which renders as ==answer==. Hints are dropped. Nested clozes inside an answer are rewritten
// too. An unterminated marker is left untouched.
func rewriteClozes(s string) string {
	var b strings.Builder
	for {
		start, bodyStart, ok := nextCloze(s)
		if !ok {
			break
		}
		end, answerEnd, ok := clozeEnd(s, bodyStart)
		if !ok {
			break
		}

		b.WriteString(s[:start])
		answer := strings.TrimSpace(rewriteClozes(s[bodyStart:answerEnd]))
		if answer != "" {
			b.WriteString("<mark>")
			b.WriteString(answer)
			b.WriteString("</mark>")
		}
		s = s[end:]
	}
	b.WriteString(s)
	return b.String()
}

// nextCloze finds the next "{{c<digits>::" marker and returns the offset of
// the marker and of the text following it.
func nextCloze(s string) (start, bodyStart int, ok bool) {
	offset := 0
	for {
		i := strings.Index(s[offset:], "{{c")
		if i < 0 {
			return 0, 0, false
		}
		start = offset + i
		j := start + 3
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if j > start+3 && strings.HasPrefix(s[j:], "::") {
			return start, j + 2, true
		}
		offset = start + 1
	}
}

// clozeEnd scans from the start of a cloze body for its closing braces,
// honouring nested {{ }} pairs. answerEnd is where the hint separator or the
// closing braces begin.
func clozeEnd(s string, from int) (end, answerEnd int, ok bool) {
	depth := 0
	answerEnd = -1
	for i := from; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], "{{"):
			depth++
			i += 2
		case strings.HasPrefix(s[i:], "}}"):
			if depth == 0 {
				if answerEnd < 0 {
					answerEnd = i
				}
				return i + 2, answerEnd, true
			}
			depth--
			i += 2
		case depth == 0 && answerEnd < 0 && strings.HasPrefix(s[i:], "::"):
			answerEnd = i
			i += 2
		default:
			i++
		}
	}
	return 0, 0, false
}
