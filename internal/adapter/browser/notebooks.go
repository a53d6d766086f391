package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/Ning0612/nbsync/internal/adapter"
	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/logger"
)

const (
	selNotebookCard     = "mat-card.project-button-card:not(.featured-project-card):not(.create-new-action-button)"
	selNotebookTitle    = ".project-button-title"
	selNotebookSubtitle = ".project-button-subtitle"
	selNotebookButton   = "button.primary-action-button"
	selTitleInput       = "input.title-input"
)

var createSelectors = []string{
	"button[aria-label='Create new notebook']",
	"button[aria-label*='Create new notebook']",
	".create-new-action-button button",
}

const newNotebookWait = 45 * time.Second

var (
	notebookIDPattern  = regexp.MustCompile(`project-([0-9a-fA-F-]{36})-title`)
	notebookURLPattern = regexp.MustCompile(`/notebook/([0-9a-fA-F-]+)`)
	sourceCountPattern = regexp.MustCompile(`(\d+)\s+sources?`)
)

// RemoteNotebook is a notebook card from the NotebookLM home page
type RemoteNotebook struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	URL         string `json:"url,omitempty" yaml:"url,omitempty"`
	Name        string `json:"name" yaml:"name"`
	Subtitle    string `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	SourceCount *int   `json:"sourceCount,omitempty" yaml:"sourceCount,omitempty"`
	Public      bool   `json:"isPublic" yaml:"isPublic"`
}

// ListNotebooks opens the home page and reads every personal notebook card
func (s *Session) ListNotebooks(ctx context.Context) ([]RemoteNotebook, error) {
	if err := s.Goto(ctx, HomeURL); err != nil {
		return nil, err
	}
	if err := s.RequireLogin(); err != nil {
		return nil, err
	}

	page := s.page.Context(ctx)
	if toggle, err := page.Timeout(2*time.Second).ElementR("button", "My notebooks"); err == nil {
		if err := toggle.Click(proto.InputMouseButtonLeft, 1); err == nil {
			_ = pause(ctx, 1200*time.Millisecond)
		}
	}

	s.scrollNotebooks(ctx)

	cards, err := page.Elements(selNotebookCard)
	if err != nil {
		return nil, err
	}

	notebooks := []RemoteNotebook{}
	seen := map[string]bool{}
	for _, card := range cards {
		nb, ok := parseCard(card)
		if !ok {
			continue
		}
		key := nb.ID
		if key == "" {
			key = nb.Name
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		notebooks = append(notebooks, nb)
	}

	logger.Get().Debug("listed remote notebooks", "count", len(notebooks))
	return notebooks, nil
}

// scrollNotebooks scrolls until the card count is stable for three rounds
func (s *Session) scrollNotebooks(ctx context.Context) {
	page := s.page.Context(ctx)
	stable, last := 0, -1
	for i := 0; i < 14 && stable < 3; i++ {
		cards, err := page.Elements(selNotebookCard)
		if err != nil {
			return
		}
		if len(cards) == last {
			stable++
		} else {
			stable = 0
		}
		last = len(cards)

		_ = page.Mouse.Scroll(0, 3200, 1)
		if pause(ctx, 450*time.Millisecond) != nil {
			return
		}
	}
}

func parseCard(card *rod.Element) (RemoteNotebook, bool) {
	full, err := card.Text()
	if err != nil {
		return RemoteNotebook{}, false
	}

	title := childText(card, selNotebookTitle)
	if title == "" {
		title = strings.TrimSpace(strings.SplitN(full, "\n", 2)[0])
	}

	var labelledBy string
	if btns, err := card.Elements(selNotebookButton); err == nil && !btns.Empty() {
		if v, err := btns.First().Attribute("aria-labelledby"); err == nil && v != nil {
			labelledBy = *v
		}
	}
	html, _ := card.HTML()

	return BuildNotebook(title, childText(card, selNotebookSubtitle), full, labelledBy, html), true
}

// BuildNotebook assembles a RemoteNotebook from the text and markup of a card
func BuildNotebook(title, subtitle, fullText string, haystacks ...string) RemoteNotebook {
	nb := RemoteNotebook{Name: title, Subtitle: subtitle}

	for _, h := range haystacks {
		if m := notebookIDPattern.FindStringSubmatch(h); m != nil {
			nb.ID = m[1]
			nb.URL = HomeURL + "notebook/" + m[1]
			break
		}
	}

	if m := sourceCountPattern.FindStringSubmatch(strings.ToLower(subtitle)); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			nb.SourceCount = &n
		}
	}

	for _, word := range strings.Fields(strings.ToLower(fullText)) {
		if word == "public" {
			nb.Public = true
			break
		}
	}
	return nb
}

// NotebookIDFromURL strips the query and fragment off a notebook URL and
// returns it with the notebook ID, "" when raw is not a notebook URL
func NotebookIDFromURL(raw string) (string, string) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", ""
	}
	m := notebookURLPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return "", ""
	}
	u.RawQuery, u.Fragment = "", ""
	return u.String(), m[1]
}

// CreateNotebook creates an empty notebook from the home page and renames it
// to name. It is not safe to retry: a second call creates a second notebook.
func (s *Session) CreateNotebook(ctx context.Context, name string) (RemoteNotebook, error) {
	fail := func(err error) (RemoteNotebook, error) {
		return RemoteNotebook{}, &domain.RemoteError{Op: domain.OpCreate, Err: err}
	}

	if err := s.Goto(ctx, HomeURL); err != nil {
		return RemoteNotebook{}, err
	}
	if err := s.RequireLogin(); err != nil {
		return RemoteNotebook{}, err
	}

	page := s.page.Context(ctx)
	race := page.Timeout(clickWait).Race()
	for _, sel := range createSelectors {
		race = race.Element(sel)
	}
	btn, err := race.Do()
	if err != nil {
		btn, err = page.Timeout(clickWait).ElementR("button", `(?i)create new`)
		if err != nil {
			return fail(fmt.Errorf("%w: could not find 'Create new notebook' button", domain.ErrRemoteUI))
		}
	}
	if err := btn.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fail(errors.Join(domain.ErrRemoteTransient, err))
	}

	var nb RemoteNotebook
	w := adapter.Waiter{Interval: 500 * time.Millisecond, Timeout: newNotebookWait}
	err = w.Until(ctx, func(ctx context.Context) (bool, error) {
		nb.URL, nb.ID = NotebookIDFromURL(s.CurrentURL())
		return nb.ID != "", nil
	})
	if err != nil {
		return fail(fmt.Errorf("%w: new notebook page did not open", domain.ErrRemoteUI))
	}
	if err := pause(ctx, settle); err != nil {
		return RemoteNotebook{}, err
	}

	nb.Name = name
	if name != "" {
		if err := s.rename(ctx, name); err != nil {
			logger.Get().Warn("notebook created but not renamed", "url", nb.URL, "error", err)
			nb.Name = ""
		}
	}

	logger.Get().Info("notebook created", "id", nb.ID, "name", nb.Name)
	return nb, nil
}

func (s *Session) rename(ctx context.Context, name string) error {
	page := s.page.Context(ctx)
	field, err := page.Timeout(clickWait).Element(selTitleInput)
	if err != nil {
		return fmt.Errorf("%w: title input", domain.ErrRemoteUI)
	}
	field = field.Context(ctx)
	if err := field.SelectAllText(); err != nil {
		return err
	}
	if err := field.Input(name); err != nil {
		return err
	}
	if err := page.Keyboard.Press(input.Enter); err != nil {
		return err
	}
	return pause(ctx, time.Second)
}
