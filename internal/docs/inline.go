package docs

import (
	"regexp"
	"unicode/utf8"
)

var (
	boldPrefix   = regexp.MustCompile(`^\*\*([^*]+?)\*\*`)
	italicPrefix = regexp.MustCompile(`^\*([^*]+?)\*`)
	plainPrefix  = regexp.MustCompile(`^[^*]+`)
)

type segment struct {
	text   string
	bold   bool
	italic bool
}

// parseInline splits a line into plain, bold and italic runs. Asterisks that do
// not form a pair are kept as literal text. Every iteration consumes input, so it
// always terminates.
func parseInline(line string) []segment {
	var segments []segment
	rest := line

	for len(rest) > 0 {
		if m := boldPrefix.FindStringSubmatch(rest); m != nil {
			segments = append(segments, segment{text: m[1], bold: true})
			rest = rest[len(m[0]):]
			continue
		}

		if len(rest) < 2 || rest[:2] != "**" {
			if m := italicPrefix.FindStringSubmatch(rest); m != nil {
				segments = append(segments, segment{text: m[1], italic: true})
				rest = rest[len(m[0]):]
				continue
			}
		}

		if m := plainPrefix.FindString(rest); m != "" {
			segments = appendPlain(segments, m)
			rest = rest[len(m):]
			continue
		}

		_, size := utf8.DecodeRuneInString(rest)
		segments = appendPlain(segments, rest[:size])
		rest = rest[size:]
	}

	return segments
}

func appendPlain(segments []segment, text string) []segment {
	if n := len(segments); n > 0 && !segments[n-1].bold && !segments[n-1].italic {
		segments[n-1].text += text
		return segments
	}
	return append(segments, segment{text: text})
}
