package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/Ning0612/nbsync/internal/adapter"
	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/logger"
)

// Chat selectors; the input label differs per UI language
var (
	chatInputSelectors = []string{
		"textarea.query-box-input",
		"textarea[aria-label*='Ask']",
		"textarea[aria-label*='Anfrage']",
	}
	responseContainer = ".to-user-container"
	responseText      = ".message-text-content"
	responseFallbacks = []string{
		"[data-message-author='bot']",
		"[data-message-author='assistant']",
		"[data-testid*='response']",
	}
	citationSelectors = []string{
		".citation-chip",
		".source-chip",
		".grounding-chip",
		".source-link",
		"a[href*='source']",
		"a[href*='notebooklm']",
	}
	selThinking = "div.thinking-message"
)

var rateLimitPhrases = []string{
	"rate limit",
	"limit exceeded",
	"quota exhausted",
	"daily limit",
	"too many requests",
}

// placeholderPhrases are shown while the reply is still being produced
var placeholderPhrases = []string{
	"analyzing your files",
	"analyzing your sources",
	"thinking",
	"loading",
	"just a moment",
	"working on it",
}

const (
	chatInputWait = 30 * time.Second
	answerPoll    = time.Second

	// stablePolls is how many identical reads make a reply final
	stablePolls = 3
)

// IsRateLimited reports whether page text carries a quota message
func IsRateLimited(body string) bool {
	lower := strings.ToLower(body)
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// IsPlaceholder reports whether a reply text is an interim status line
func IsPlaceholder(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return true
	}
	for _, phrase := range placeholderPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// AnswerTracker picks the new reply out of successive reads of the chat and
// reports it once it has been read unchanged stablePolls times in a row
type AnswerTracker struct {
	question string
	seen     map[string]bool
	last     string
	count    int
}

// NewAnswerTracker ignores the replies already on screen before asking
func NewAnswerTracker(question string, existing []string) *AnswerTracker {
	seen := make(map[string]bool, len(existing))
	for _, text := range existing {
		if t := strings.TrimSpace(text); t != "" {
			seen[t] = true
		}
	}
	return &AnswerTracker{
		question: strings.ToLower(strings.TrimSpace(question)),
		seen:     seen,
	}
}

// Observe feeds one read of the reply texts
func (t *AnswerTracker) Observe(texts []string) (string, bool) {
	candidate := ""
	for _, text := range texts {
		clean := strings.TrimSpace(text)
		if clean == "" || t.seen[clean] || strings.ToLower(clean) == t.question || IsPlaceholder(clean) {
			continue
		}
		candidate = clean
		break
	}
	if candidate == "" {
		return "", false
	}

	if candidate == t.last {
		t.count++
	} else {
		t.last, t.count = candidate, 1
	}
	return candidate, t.count >= stablePolls
}

// NewCitations returns after minus before, deduplicated, in after's order
func NewCitations(before, after []string) []string {
	skip := make(map[string]bool, len(before)+len(after))
	for _, c := range before {
		skip[c] = true
	}
	out := []string{}
	for _, c := range after {
		if skip[c] {
			continue
		}
		skip[c] = true
		out = append(out, c)
	}
	return out
}

// Ask types question into the notebook chat and waits for a settled reply
func (s *Session) Ask(ctx context.Context, question string, timeout time.Duration) (domain.Answer, error) {
	page := s.page.Context(ctx)
	fail := func(err error) (domain.Answer, error) {
		return domain.Answer{}, &domain.RemoteError{Op: domain.OpAsk, Err: err}
	}

	if err := s.RequireLogin(); err != nil {
		return domain.Answer{}, err
	}

	race := page.Timeout(chatInputWait).Race()
	for _, sel := range chatInputSelectors {
		race = race.Element(sel)
	}
	box, err := race.Do()
	if err != nil {
		return fail(fmt.Errorf("%w: chat input, the notebook may still be loading", domain.ErrRemoteUI))
	}
	box = box.Context(ctx)

	existing := s.responseTexts(ctx)
	before := s.citations(ctx)

	if err := box.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fail(errors.Join(domain.ErrRemoteTransient, err))
	}
	if err := box.Input(question); err != nil {
		return fail(errors.Join(domain.ErrRemoteTransient, err))
	}
	if err := page.Keyboard.Press(input.Enter); err != nil {
		return fail(errors.Join(domain.ErrRemoteTransient, err))
	}

	tracker := NewAnswerTracker(question, existing)
	var answer string
	w := adapter.Waiter{Interval: answerPoll, Timeout: timeout}
	err = w.Until(ctx, func(ctx context.Context) (bool, error) {
		if s.thinking(ctx) {
			return false, nil
		}
		if body, err := page.Element("body"); err == nil && IsRateLimited(childTextOf(body)) {
			return false, fmt.Errorf("%w: try again later or re-authenticate", domain.ErrRateLimited)
		}
		text, done := tracker.Observe(s.responseTexts(ctx))
		answer = text
		return done, nil
	})
	if err != nil {
		return fail(err)
	}

	citations := NewCitations(before, s.citations(ctx))
	logger.Get().Debug("answer received", "chars", len(answer), "citations", len(citations))
	return domain.Answer{Text: answer, Citations: citations}, nil
}

func (s *Session) thinking(ctx context.Context) bool {
	has, el, err := s.page.Context(ctx).Has(selThinking)
	if err != nil || !has {
		return false
	}
	visible, err := el.Visible()
	return err == nil && visible
}

// responseTexts reads the reply bubbles, oldest first
func (s *Session) responseTexts(ctx context.Context) []string {
	page := s.page.Context(ctx)
	texts := []string{}

	if containers, err := page.Elements(responseContainer); err == nil {
		for _, c := range containers {
			if text := childText(c, responseText); text != "" {
				texts = append(texts, text)
			}
		}
	}
	if len(texts) > 0 {
		return texts
	}

	for _, sel := range responseFallbacks {
		texts = appendTexts(texts, page, sel)
		if len(texts) > 0 {
			break
		}
	}
	return texts
}

func (s *Session) citations(ctx context.Context) []string {
	page := s.page.Context(ctx)
	var all []string
	for _, sel := range citationSelectors {
		all = appendTexts(all, page, sel)
	}
	return NewCitations(nil, all)
}

func appendTexts(texts []string, page *rod.Page, sel string) []string {
	els, err := page.Elements(sel)
	if err != nil {
		return texts
	}
	for _, el := range els {
		if text := childTextOf(el); text != "" {
			texts = append(texts, text)
		}
	}
	return texts
}
