package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/Ning0612/nbsync/internal/domain"
)

// FakeRemote is an in-memory notebook used in place of the browser driver
type FakeRemote struct {
	mu sync.Mutex

	items   []domain.RemoteItem
	pending []domain.RemoteItem
	lag     int

	// NeverAppear titles are accepted by Upload but never show up
	NeverAppear map[string]bool

	// StuckDeletes titles report a click but stay listed
	StuckDeletes map[string]bool

	errs map[string][]error

	// Answers maps a question to its scripted reply; others get an echo
	Answers map[string]domain.Answer

	Uploads   [][]string
	Deletes   []string
	Inserts   []string
	Questions []string
	Lists     int
	Closed    bool
}

// NewFakeRemote creates a fake notebook holding the given titles
func NewFakeRemote(titles ...string) *FakeRemote {
	f := &FakeRemote{
		NeverAppear:  map[string]bool{},
		StuckDeletes: map[string]bool{},
		Answers:      map[string]domain.Answer{},
		errs:         map[string][]error{},
	}
	for _, title := range titles {
		f.items = append(f.items, domain.RemoteItem{Title: title, Kind: "text"})
	}
	return f
}

// SetLag makes uploaded items appear only after n further ListItems calls
func (f *FakeRemote) SetLag(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lag = n
}

// FailNext queues err for the next call of op ("list", "upload", "delete",
// "insert" or "ask")
func (f *FakeRemote) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = append(f.errs[op], err)
}

// Titles returns the currently visible titles
func (f *FakeRemote) Titles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.ItemTitles(f.items)
}

func (f *FakeRemote) popErr(op string) error {
	queue := f.errs[op]
	if len(queue) == 0 {
		return nil
	}
	f.errs[op] = queue[1:]
	return queue[0]
}

// ListItems implements the remote interface
func (f *FakeRemote) ListItems(ctx context.Context) ([]domain.RemoteItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Lists++
	if err := f.popErr("list"); err != nil {
		return nil, err
	}

	if len(f.pending) > 0 {
		if f.lag > 0 {
			f.lag--
		} else {
			f.items = append(f.items, f.pending...)
			f.pending = nil
		}
	}

	out := make([]domain.RemoteItem, len(f.items))
	copy(out, f.items)
	return out, nil
}

// Upload implements the remote interface
func (f *FakeRemote) Upload(ctx context.Context, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.popErr("upload"); err != nil {
		return err
	}
	f.Uploads = append(f.Uploads, append([]string(nil), paths...))

	for _, path := range paths {
		title := filepath.Base(path)
		if f.NeverAppear[title] {
			continue
		}
		f.pending = append(f.pending, domain.RemoteItem{Title: title, Kind: "file"})
	}
	return nil
}

// Delete implements the remote interface
func (f *FakeRemote) Delete(ctx context.Context, title string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.popErr("delete"); err != nil {
		return false, err
	}

	for i, item := range f.items {
		if item.Title != title {
			continue
		}
		f.Deletes = append(f.Deletes, title)
		if !f.StuckDeletes[title] {
			f.items = append(f.items[:i], f.items[i+1:]...)
		}
		return true, nil
	}
	return false, nil
}

// PastedTextTitle is the title the fake gives inserted text
const PastedTextTitle = "Pasted text"

// InsertText adds a pasted-text source
func (f *FakeRemote) InsertText(ctx context.Context, text string) error {
	return f.insert(text, PastedTextTitle)
}

// InsertURL adds a website source titled by its address
func (f *FakeRemote) InsertURL(ctx context.Context, url string) error {
	return f.insert(url, url)
}

func (f *FakeRemote) insert(content, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.popErr("insert"); err != nil {
		return err
	}
	f.Inserts = append(f.Inserts, content)
	if !f.NeverAppear[title] {
		f.pending = append(f.pending, domain.RemoteItem{Title: title, Kind: "text"})
	}
	return nil
}

// Ask returns the scripted answer for question
func (f *FakeRemote) Ask(ctx context.Context, question string, timeout time.Duration) (domain.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Questions = append(f.Questions, question)
	if err := f.popErr("ask"); err != nil {
		return domain.Answer{}, err
	}
	if ans, ok := f.Answers[question]; ok {
		return ans, nil
	}
	return domain.Answer{Text: "answer to: " + question}, nil
}

// Close implements the remote interface
func (f *FakeRemote) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// FakeOpener hands out the same FakeRemote for every notebook
type FakeOpener struct {
	Remote *FakeRemote

	mu       sync.Mutex
	openErrs []error
	Opens    int
	URLs     []string
}

// FailNextOpen queues an error for the next Open call
func (o *FakeOpener) FailNextOpen(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openErrs = append(o.openErrs, err)
}

// Open returns the shared fake remote. The return type is the concrete fake;
// callers wrap it to satisfy the opener interface.
func (o *FakeOpener) Open(ctx context.Context, notebookURL string) (*FakeRemote, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.Opens++
	o.URLs = append(o.URLs, notebookURL)
	if len(o.openErrs) > 0 {
		err := o.openErrs[0]
		o.openErrs = o.openErrs[1:]
		return nil, err
	}
	o.Remote.mu.Lock()
	o.Remote.Closed = false
	o.Remote.mu.Unlock()
	return o.Remote, nil
}
