package domain

// Plan partitions local and remote titles for one sync run
type Plan struct {
	ToAdd     []string `json:"toAdd" yaml:"toAdd"`
	ToUpdate  []string `json:"toUpdate" yaml:"toUpdate"`
	ToDelete  []string `json:"toDelete" yaml:"toDelete"`
	Unchanged []string `json:"unchanged" yaml:"unchanged"`
}

// IsEmpty reports whether the plan has no mutations
func (p Plan) IsEmpty() bool {
	return len(p.ToAdd) == 0 && len(p.ToUpdate) == 0 && len(p.ToDelete) == 0
}

// Removals returns the titles deleted before uploading: deletions then updates
func (p Plan) Removals() []string {
	out := make([]string, 0, len(p.ToDelete)+len(p.ToUpdate))
	out = append(out, p.ToDelete...)
	out = append(out, p.ToUpdate...)
	return out
}

// Uploads returns the titles uploaded in the single batch: additions then updates
func (p Plan) Uploads() []string {
	out := make([]string, 0, len(p.ToAdd)+len(p.ToUpdate))
	out = append(out, p.ToAdd...)
	out = append(out, p.ToUpdate...)
	return out
}

// PlanOptions are the planner flags
type PlanOptions struct {
	// ForceUpdate re-uploads titles present remotely even if the hash matches
	ForceUpdate bool

	// DeleteMissing removes remote titles absent from the local set
	DeleteMissing bool
}

// Status values of a Result
type Status string

const (
	StatusSuccess Status = "success"
	StatusDryRun  Status = "dry-run"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// OK reports whether the status maps to a zero exit code
func (s Status) OK() bool {
	return s == StatusSuccess || s == StatusDryRun
}

// Operation names
const (
	OpSync   = "sync-sources"
	OpAdd    = "add-source"
	OpDelete = "delete-source"
	OpList   = "list-sources"
	OpUpload = "upload"
	OpRemove = "remove"
	OpInsert = "insert"
	OpAsk    = "ask"
	OpCreate = "create-notebook"
)

// Failure is a per-item apply failure
type Failure struct {
	Title string `json:"title" yaml:"title"`
	Op    string `json:"op" yaml:"op"`
	Error string `json:"error" yaml:"error"`
}

// Artifact describes debug files captured after a failed browser attempt
type Artifact struct {
	Attempt    int    `json:"attempt" yaml:"attempt"`
	Error      string `json:"error" yaml:"error"`
	URL        string `json:"url,omitempty" yaml:"url,omitempty"`
	Screenshot string `json:"screenshot,omitempty" yaml:"screenshot,omitempty"`
	HTML       string `json:"html,omitempty" yaml:"html,omitempty"`
}

// Result is the single structured object printed by every command
type Result struct {
	Status      Status `json:"status" yaml:"status"`
	Operation   string `json:"operation" yaml:"operation"`
	RunID       string `json:"runId,omitempty" yaml:"runId,omitempty"`
	NotebookURL string `json:"notebookUrl,omitempty" yaml:"notebookUrl,omitempty"`
	NotebookID  string `json:"notebookId,omitempty" yaml:"notebookId,omitempty"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`

	Plan        *Plan         `json:"plan,omitempty" yaml:"plan,omitempty"`
	FilteredOut []FilteredOut `json:"filteredOut" yaml:"filteredOut"`

	LocalCount  int `json:"localCount" yaml:"localCount"`
	RemoteCount int `json:"remoteCount" yaml:"remoteCount"`
	BeforeCount int `json:"beforeCount" yaml:"beforeCount"`
	AfterCount  int `json:"afterCount" yaml:"afterCount"`

	UploadedTitles   []string     `json:"uploadedTitles" yaml:"uploadedTitles"`
	AddedSources     []string     `json:"addedSources" yaml:"addedSources"`
	RemovedTitles    []string     `json:"removedTitles" yaml:"removedTitles"`
	SkippedUnchanged []string     `json:"skippedUnchanged,omitempty" yaml:"skippedUnchanged,omitempty"`
	FinalSources     []string     `json:"finalSources,omitempty" yaml:"finalSources,omitempty"`
	Sources          []RemoteItem `json:"sources,omitempty" yaml:"sources,omitempty"`
	Failures         []Failure    `json:"failures,omitempty" yaml:"failures,omitempty"`

	Attempts       int        `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	PreviousErrors []string   `json:"previousErrors,omitempty" yaml:"previousErrors,omitempty"`
	Artifacts      []Artifact `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	TempUploadDir  string     `json:"tempUploadDir,omitempty" yaml:"tempUploadDir,omitempty"`
}

// NewResult returns a Result with empty (non-nil) lists
func NewResult(op string) *Result {
	return &Result{
		Operation:      op,
		FilteredOut:    []FilteredOut{},
		UploadedTitles: []string{},
		AddedSources:   []string{},
		RemovedTitles:  []string{},
	}
}

// AddFailure records a per-item failure
func (r *Result) AddFailure(title, op string, err error) {
	r.Failures = append(r.Failures, Failure{Title: title, Op: op, Error: err.Error()})
}
