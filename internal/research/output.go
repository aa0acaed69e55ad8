package research

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const webSearchTool = "web_search_preview"

type responseEnvelope struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	CreatedAt  float64         `json:"created_at"`
	UpdatedAt  float64         `json:"updated_at"`
	Output     json.RawMessage `json:"output"`
	OutputText string          `json:"output_text"`
	Error      *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

type outputItem struct {
	Type      string          `json:"type"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	ToolCalls []struct {
		Type     string `json:"type"`
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

type contentPart struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	OutputText  string `json:"output_text"`
	Annotations []struct {
		Type  string `json:"type"`
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"annotations"`
}

type searchResults struct {
	Results []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Body    string `json:"body"`
	} `json:"results"`
}

// ProbeShape reports how an output field is encoded without fully decoding it.
func ProbeShape(raw json.RawMessage) Shape {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ShapeNone
	}
	switch trimmed[0] {
	case '[':
		return ShapeTurns
	case '"':
		return ShapeString
	}
	return ShapeNone
}

// parseJob converts a raw backend response into a Job.
func parseJob(body []byte) (*Job, error) {
	var env responseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}

	updated := env.UpdatedAt
	if updated == 0 {
		updated = env.CreatedAt
	}

	job := &Job{
		ID:        env.ID,
		Status:    NormalizeStatus(env.Status),
		CreatedAt: unixTime(env.CreatedAt),
		UpdatedAt: unixTime(updated),
		Shape:     ProbeShape(env.Output),
	}

	switch job.Status {
	case StatusCompleted:
		report, sources := extractOutput(job.Shape, env.Output)
		if report == "" {
			report = env.OutputText
		}
		job.Results = &Results{Report: report, Sources: sources}
	case StatusFailed:
		job.Error = &JobError{Message: "Research job failed", Type: "unknown"}
		if env.Error != nil {
			if env.Error.Message != "" {
				job.Error.Message = env.Error.Message
			}
			if env.Error.Type != "" {
				job.Error.Type = env.Error.Type
			} else if env.Error.Code != "" {
				job.Error.Type = env.Error.Code
			}
		}
	}

	return job, nil
}

func extractOutput(shape Shape, raw json.RawMessage) (string, []Source) {
	switch shape {
	case ShapeString:
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", nil
		}
		return text, nil
	case ShapeTurns:
		var items []outputItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return "", nil
		}
		return extractTurns(items)
	}
	return "", nil
}

func extractTurns(items []outputItem) (string, []Source) {
	var texts []string
	sources := newSourceSet()

	for _, item := range items {
		if item.Role == "assistant" && len(item.Content) > 0 {
			if text := contentText(item.Content, sources); text != "" {
				texts = append(texts, text)
			}
		}

		for _, call := range item.ToolCalls {
			if call.Type != "function" || call.Function.Name != webSearchTool {
				continue
			}
			var args searchResults
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				continue
			}
			for _, r := range args.Results {
				snippet := r.Snippet
				if snippet == "" {
					snippet = r.Body
				}
				sources.add(Source{URL: r.URL, Title: r.Title, Snippet: snippet})
			}
		}
	}

	return strings.Join(texts, "\n\n"), sources.list
}

// contentText handles both string content and a list of typed parts.
func contentText(raw json.RawMessage, sources *sourceSet) string {
	if ProbeShape(raw) == ShapeString {
		var text string
		_ = json.Unmarshal(raw, &text)
		return text
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}

	var lines []string
	for _, p := range parts {
		if p.Type != "text" && p.Type != "output_text" {
			continue
		}
		text := p.Text
		if text == "" {
			text = p.OutputText
		}
		lines = append(lines, text)

		for _, a := range p.Annotations {
			if a.Type == "url_citation" {
				sources.add(Source{URL: a.URL, Title: a.Title})
			}
		}
	}
	return strings.Join(lines, "\n")
}

type sourceSet struct {
	seen map[string]bool
	list []Source
}

func newSourceSet() *sourceSet {
	return &sourceSet{seen: make(map[string]bool), list: []Source{}}
}

func (s *sourceSet) add(src Source) {
	if src.URL != "" {
		if s.seen[src.URL] {
			return
		}
		s.seen[src.URL] = true
	}
	src.Snippet = stripHTML(src.Snippet)
	s.list = append(s.list, src)
}

// stripHTML reduces an HTML fragment to its text.
func stripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func unixTime(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	whole := int64(sec)
	return time.Unix(whole, int64((sec-float64(whole))*1e9)).UTC()
}
