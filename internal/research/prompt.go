package research

import (
	"fmt"
	"strings"
)

// PromptInput is everything the user supplied for one report.
type PromptInput struct {
	ReportType string
	ClientName string
	Transcript string
	URLs       []string
	Documents  []string
}

// BuildPrompt renders the user message sent with a research job.
func BuildPrompt(in PromptInput) string {
	transcript := strings.TrimSpace(in.Transcript)
	if transcript == "" {
		transcript = "N/A"
	}

	urls := "No URLs provided"
	if cleaned := nonEmpty(in.URLs); len(cleaned) > 0 {
		urls = strings.Join(cleaned, "\n")
	}

	docs := "No documents uploaded"
	if cleaned := nonEmpty(in.Documents); len(cleaned) > 0 {
		docs = strings.Join(cleaned, "\n")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Report Type: %s\n", in.ReportType)
	fmt.Fprintf(&b, "Client: %s\n\n", in.ClientName)
	fmt.Fprintf(&b, "Meeting Transcript:\n%s\n\n", transcript)
	fmt.Fprintf(&b, "Reference URLs:\n%s\n\n", urls)
	fmt.Fprintf(&b, "Uploaded Documents:\n%s\n", docs)
	return b.String()
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
