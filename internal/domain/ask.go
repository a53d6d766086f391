package domain

import "time"

// Ask modes
const (
	AskSingle = "single"
	AskBatch  = "batch"
	AskMulti  = "multi"
)

// Answer is one chat reply read from a notebook
type Answer struct {
	Text string

	// Citations are the citation chips that appeared with this reply
	Citations []string
}

// AskItem is one question put to one notebook
type AskItem struct {
	Question    string    `json:"question" yaml:"question"`
	NotebookURL string    `json:"notebookUrl" yaml:"notebookUrl"`
	NotebookID  string    `json:"notebookId,omitempty" yaml:"notebookId,omitempty"`
	Answer      string    `json:"answer,omitempty" yaml:"answer,omitempty"`
	Citations   []string  `json:"citations,omitempty" yaml:"citations,omitempty"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
	AnsweredAt  time.Time `json:"timestampUtc" yaml:"timestampUtc"`

	Attempts       int        `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	PreviousErrors []string   `json:"previousErrors,omitempty" yaml:"previousErrors,omitempty"`
	Artifacts      []Artifact `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
}

// OK reports whether the item got an answer
func (i AskItem) OK() bool {
	return i.Error == ""
}

// AskResult is printed by the ask command. Single and batch modes hold one
// item per question; multi mode holds one item per notebook.
type AskResult struct {
	Status    Status `json:"status" yaml:"status"`
	Operation string `json:"operation" yaml:"operation"`
	Mode      string `json:"mode" yaml:"mode"`
	RunID     string `json:"runId,omitempty" yaml:"runId,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`

	Count        int       `json:"count" yaml:"count"`
	SuccessCount int       `json:"successCount" yaml:"successCount"`
	ErrorCount   int       `json:"errorCount" yaml:"errorCount"`
	Items        []AskItem `json:"items" yaml:"items"`

	ExportFile string `json:"exportFile,omitempty" yaml:"exportFile,omitempty"`
}
