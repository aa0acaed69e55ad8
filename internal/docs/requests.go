package docs

// Request is one entry of a documents.batchUpdate call. Exactly one field is set.
type Request struct {
	InsertText           *InsertText           `json:"insertText,omitempty"`
	InsertPageBreak      *InsertPageBreak      `json:"insertPageBreak,omitempty"`
	UpdateParagraphStyle *UpdateParagraphStyle `json:"updateParagraphStyle,omitempty"`
	UpdateTextStyle      *UpdateTextStyle      `json:"updateTextStyle,omitempty"`
	InsertInlineImage    *InsertInlineImage    `json:"insertInlineImage,omitempty"`
	CreateHeader         *CreateHeader         `json:"createHeader,omitempty"`
}

// Location points at an index inside the body or inside a segment such as a header.
// Index is always serialized, including zero.
type Location struct {
	SegmentID string `json:"segmentId,omitempty"`
	Index     int    `json:"index"`
}

type Range struct {
	SegmentID  string `json:"segmentId,omitempty"`
	StartIndex int    `json:"startIndex"`
	EndIndex   int    `json:"endIndex"`
}

type Dimension struct {
	Magnitude float64 `json:"magnitude"`
	Unit      string  `json:"unit"`
}

func pt(magnitude float64) *Dimension {
	return &Dimension{Magnitude: magnitude, Unit: "PT"}
}

type Size struct {
	Height *Dimension `json:"height,omitempty"`
	Width  *Dimension `json:"width,omitempty"`
}

type ParagraphStyle struct {
	NamedStyleType string     `json:"namedStyleType,omitempty"`
	SpaceAbove     *Dimension `json:"spaceAbove,omitempty"`
	SpaceBelow     *Dimension `json:"spaceBelow,omitempty"`
	Alignment      string     `json:"alignment,omitempty"`
}

type TextStyle struct {
	Bold   bool `json:"bold,omitempty"`
	Italic bool `json:"italic,omitempty"`
}

type InsertText struct {
	Location Location `json:"location"`
	Text     string   `json:"text"`
}

type InsertPageBreak struct {
	Location Location `json:"location"`
}

type UpdateParagraphStyle struct {
	Range          Range          `json:"range"`
	ParagraphStyle ParagraphStyle `json:"paragraphStyle"`
	Fields         string         `json:"fields"`
}

type UpdateTextStyle struct {
	Range     Range     `json:"range"`
	TextStyle TextStyle `json:"textStyle"`
	Fields    string    `json:"fields"`
}

type InsertInlineImage struct {
	Location   Location `json:"location"`
	URI        string   `json:"uri"`
	ObjectSize *Size    `json:"objectSize,omitempty"`
}

type CreateHeader struct {
	Type string `json:"type"`
}
