package docs

import (
	"regexp"
	"strings"
	"unicode/utf16"
)

const (
	pageBreakMarker = "<pagebreak>"

	Heading1 = "HEADING_1"
	Heading2 = "HEADING_2"
	Heading3 = "HEADING_3"

	headingFields = "namedStyleType,spaceAbove,spaceBelow"
)

var inlineFormatting = regexp.MustCompile(`\*\*[^*]+\*\*|\*[^*]+\*`)

type heading struct {
	prefixes []string
	style    string
	above    float64
	below    float64
}

var headings = []heading{
	{prefixes: []string{"# "}, style: Heading1, above: 12, below: 6},
	{prefixes: []string{"## "}, style: Heading2, above: 10, below: 4},
	{prefixes: []string{"### ", "#### "}, style: Heading3, above: 8, below: 3},
}

// Translate converts report Markdown into Docs requests that build the document
// from startIndex onwards. Offsets are in UTF-16 code units and each request already
// accounts for the text inserted before it.
func Translate(content string, startIndex int) []Request {
	var requests []Request
	cursor := startIndex

	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			requests = append(requests, insertText(cursor, "\n"))
			cursor++
			continue
		}

		if line == pageBreakMarker {
			requests = append(requests, Request{InsertPageBreak: &InsertPageBreak{Location: Location{Index: cursor}}})
			cursor++
			continue
		}

		if h, text, ok := matchHeading(line); ok {
			length := textLength(text)
			requests = append(requests,
				insertText(cursor, text+"\n"),
				Request{UpdateParagraphStyle: &UpdateParagraphStyle{
					Range: Range{StartIndex: cursor, EndIndex: cursor + length},
					ParagraphStyle: ParagraphStyle{
						NamedStyleType: h.style,
						SpaceAbove:     pt(h.above),
						SpaceBelow:     pt(h.below),
					},
					Fields: headingFields,
				}},
			)
			cursor += length + 1
			continue
		}

		if inlineFormatting.MatchString(line) {
			segments := parseInline(line)

			var visible strings.Builder
			for _, s := range segments {
				visible.WriteString(s.text)
			}
			requests = append(requests, insertText(cursor, visible.String()+"\n"))

			offset := cursor
			for _, s := range segments {
				end := offset + textLength(s.text)
				if s.bold {
					requests = append(requests, textStyle(offset, end, TextStyle{Bold: true}, "bold"))
				}
				if s.italic {
					requests = append(requests, textStyle(offset, end, TextStyle{Italic: true}, "italic"))
				}
				offset = end
			}
			cursor = offset + 1
			continue
		}

		requests = append(requests, insertText(cursor, line+"\n"))
		cursor += textLength(line) + 1
	}

	return requests
}

// HeaderRequests creates the default page header that later holds the logo.
func HeaderRequests() []Request {
	return []Request{{CreateHeader: &CreateHeader{Type: "DEFAULT"}}}
}

// LogoRequests places the logo at the start of the header segment. It does not
// touch the body, so its offsets are independent of Translate.
func LogoRequests(headerID, logoURL string) []Request {
	return []Request{
		{InsertInlineImage: &InsertInlineImage{
			Location:   Location{SegmentID: headerID, Index: 0},
			URI:        logoURL,
			ObjectSize: &Size{Height: pt(60), Width: pt(120)},
		}},
		{UpdateParagraphStyle: &UpdateParagraphStyle{
			Range:          Range{SegmentID: headerID, StartIndex: 0, EndIndex: 1},
			ParagraphStyle: ParagraphStyle{Alignment: "START"},
			Fields:         "alignment",
		}},
	}
}

func matchHeading(line string) (heading, string, bool) {
	for _, h := range headings {
		for _, prefix := range h.prefixes {
			if strings.HasPrefix(line, prefix) {
				return h, strings.TrimSpace(line[len(prefix):]), true
			}
		}
	}
	return heading{}, "", false
}

func insertText(index int, text string) Request {
	return Request{InsertText: &InsertText{Location: Location{Index: index}, Text: text}}
}

func textStyle(start, end int, style TextStyle, fields string) Request {
	return Request{UpdateTextStyle: &UpdateTextStyle{
		Range:     Range{StartIndex: start, EndIndex: end},
		TextStyle: style,
		Fields:    fields,
	}}
}

// textLength is the length the Docs API sees: UTF-16 code units.
func textLength(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
