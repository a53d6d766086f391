package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Ning0612/nbsync/internal/adapter"
	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/library"
	"github.com/Ning0612/nbsync/internal/logger"
)

// DefaultAnswerTimeout bounds the wait for one chat reply
const DefaultAnswerTimeout = 120 * time.Second

// AskRequest puts questions to notebooks. With more than one target every
// notebook gets the same single question; otherwise each question goes to
// the first target.
type AskRequest struct {
	Targets   []library.Target
	Questions []string

	// FailFast stops at the first question that gets no answer
	FailFast      bool
	AnswerTimeout time.Duration
	Remote        RemoteOptions
}

// Mode returns single, batch or multi
func (r AskRequest) Mode() string {
	switch {
	case len(r.Targets) > 1:
		return domain.AskMulti
	case len(r.Questions) > 1:
		return domain.AskBatch
	default:
		return domain.AskSingle
	}
}

type askJob struct {
	target   library.Target
	question string
}

func (r AskRequest) jobs() ([]askJob, error) {
	questions := make([]string, 0, len(r.Questions))
	for _, q := range r.Questions {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}
	if len(questions) == 0 {
		return nil, domain.Validationf("at least one question is required")
	}
	if len(r.Targets) == 0 {
		return nil, domain.Validationf("no target notebook")
	}

	if len(r.Targets) > 1 {
		if len(questions) != 1 {
			return nil, domain.Validationf("comparing notebooks takes exactly one question, got %d", len(questions))
		}
		jobs := make([]askJob, len(r.Targets))
		for i, t := range r.Targets {
			jobs[i] = askJob{target: t, question: questions[0]}
		}
		return jobs, nil
	}

	jobs := make([]askJob, len(questions))
	for i, q := range questions {
		jobs[i] = askJob{target: r.Targets[0], question: q}
	}
	return jobs, nil
}

// Ask runs every question in its own browser session under the retry
// policy. Rate limits and lost logins end the run since the remaining
// questions would hit the same wall.
func (s *SyncService) Ask(ctx context.Context, req AskRequest) (*domain.AskResult, error) {
	res := &domain.AskResult{
		Operation: domain.OpAsk,
		Mode:      req.Mode(),
		RunID:     s.newRunID(),
		Items:     []domain.AskItem{},
	}
	log := logger.Get().With("run_id", res.RunID, "op", res.Operation, "mode", res.Mode)

	jobs, err := req.jobs()
	if err != nil {
		res.Status = domain.StatusFailed
		res.Error = err.Error()
		return res, err
	}

	timeout := req.AnswerTimeout
	if timeout <= 0 {
		timeout = DefaultAnswerTimeout
	}

	var lastErr error
	for i, job := range jobs {
		item, err := s.askOne(ctx, job, timeout, req.Remote)
		res.Items = append(res.Items, item)
		if err == nil {
			log.Info("question answered", "index", i+1, "notebook", job.target.URL, "attempts", item.Attempts)
			s.touchLibrary(job.target)
			continue
		}

		lastErr = err
		log.Warn("question failed", "index", i+1, "notebook", job.target.URL, "attempts", item.Attempts, "error", err)
		if req.FailFast || ctx.Err() != nil ||
			errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrRemoteAuth) {
			break
		}
	}

	res.Count = len(res.Items)
	for _, item := range res.Items {
		if item.OK() {
			res.SuccessCount++
		} else {
			res.ErrorCount++
		}
	}

	switch {
	case res.ErrorCount == 0 && res.Count == len(jobs):
		res.Status = domain.StatusSuccess
	case res.SuccessCount > 0:
		res.Status = domain.StatusPartial
	default:
		res.Status = domain.StatusFailed
		res.Error = lastErr.Error()
		log.Error("command failed", "error", lastErr)
		return res, lastErr
	}
	log.Info("command finished", "status", res.Status, "answered", res.SuccessCount, "failed", res.ErrorCount)
	return res, nil
}

func (s *SyncService) askOne(ctx context.Context, job askJob, timeout time.Duration, opts RemoteOptions) (domain.AskItem, error) {
	scratch := s.begin(domain.OpAsk, job.target)
	item := domain.AskItem{
		Question:    job.question,
		NotebookURL: job.target.URL,
		NotebookID:  job.target.ID,
	}

	var answer domain.Answer
	err := s.withRemote(ctx, scratch, job.target, opts, func(ctx context.Context, r adapter.Remote) error {
		asker, ok := r.(adapter.Asker)
		if !ok {
			return fmt.Errorf("%w: remote cannot answer questions", domain.ErrValidation)
		}
		a, err := asker.Ask(ctx, job.question, timeout)
		if err != nil {
			return err
		}
		answer = a
		return nil
	})

	item.AnsweredAt = s.now().UTC()
	item.Attempts = scratch.Attempts
	item.PreviousErrors = scratch.PreviousErrors
	item.Artifacts = scratch.Artifacts
	if err != nil {
		item.Error = err.Error()
		return item, err
	}
	item.Answer = answer.Text
	item.Citations = answer.Citations
	return item, nil
}

// AskMarkdown renders an ask result as a markdown note
func AskMarkdown(res *domain.AskResult, generated time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# NotebookLM Export (%s)\n\n", res.Mode)
	fmt.Fprintf(&b, "Generated: %s\n", generated.UTC().Format(time.RFC3339))

	for i, item := range res.Items {
		switch res.Mode {
		case domain.AskMulti:
			if i == 0 {
				fmt.Fprintf(&b, "\n## Question\n\n%s\n", item.Question)
			}
			fmt.Fprintf(&b, "\n## Notebook: %s\n\n", item.NotebookURL)
			writeAnswer(&b, item, "Citations:")
		case domain.AskBatch:
			fmt.Fprintf(&b, "\n## Q%d: %s\n\n", i+1, item.Question)
			writeAnswer(&b, item, "Citations:")
		default:
			fmt.Fprintf(&b, "\nNotebook: %s\n\n## Question\n\n%s\n\n## Answer\n\n", item.NotebookURL, item.Question)
			writeAnswer(&b, item, "## Citations")
		}
	}
	return b.String()
}

func writeAnswer(b *strings.Builder, item domain.AskItem, heading string) {
	if !item.OK() {
		fmt.Fprintf(b, "_Error: %s_\n", item.Error)
		return
	}
	fmt.Fprintf(b, "%s\n\n%s\n\n", strings.TrimSpace(item.Answer), heading)
	if len(item.Citations) == 0 {
		b.WriteString("- (none detected)\n")
		return
	}
	for _, c := range item.Citations {
		fmt.Fprintf(b, "- %s\n", c)
	}
}
