package research

import "fmt"

// SubmissionError means the research job could not be created.
type SubmissionError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("OpenAI API error: %s", e.Message)
	}
	return fmt.Sprintf("OpenAI API error: %d - %s", e.StatusCode, e.Message)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// StatusCheckError means a single status read failed. It is never retried here.
type StatusCheckError struct {
	JobID      string
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusCheckError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("failed to check research job %s: %s", e.JobID, e.Message)
	}
	return fmt.Sprintf("failed to check research job %s: HTTP %d - %s", e.JobID, e.StatusCode, e.Message)
}

func (e *StatusCheckError) Unwrap() error {
	return e.Err
}
