package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ning0612/nbsync/internal/domain"
)

// Default wait budgets for remote mutations
const (
	DeleteWaitTimeout  = 35 * time.Second
	DeletePollInterval = 500 * time.Millisecond
	UploadWaitTimeout  = 180 * time.Second
	UploadPollInterval = 800 * time.Millisecond
)

// Waiter polls a condition at a fixed interval until a deadline
type Waiter struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Until polls cond until it reports true. It returns domain.ErrTimeout when
// the deadline passes and stops early on a condition error.
func (w Waiter) Until(ctx context.Context, cond func(ctx context.Context) (bool, error)) error {
	interval := w.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	deadline := time.Now().Add(w.Timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w after %s", domain.ErrTimeout, w.Timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// NewTitles returns titles in current beyond what before accounts for,
// counting duplicates (multiset difference), in current's order
func NewTitles(before, current []string) []string {
	budget := make(map[string]int, len(before))
	for _, title := range before {
		budget[title]++
	}

	added := []string{}
	for _, title := range current {
		if budget[title] > 0 {
			budget[title]--
			continue
		}
		added = append(added, title)
	}
	return added
}

// WaitForNewTitles polls r until every expected title has appeared beyond the
// before snapshot or the waiter times out. It returns the titles that did
// appear; a timeout is not an error here, missing titles are the caller's
// per-item failures.
func WaitForNewTitles(ctx context.Context, r Remote, before, expected []string, w Waiter) ([]string, error) {
	var added []string

	err := w.Until(ctx, func(ctx context.Context) (bool, error) {
		items, err := r.ListItems(ctx)
		if err != nil {
			return false, err
		}
		added = NewTitles(before, domain.ItemTitles(items))
		return containsAll(added, expected), nil
	})
	if err != nil && !isTimeout(err) {
		return added, err
	}
	return added, nil
}

// WaitForAnyNewTitle polls r until at least one source beyond before shows
// up. Pasted text and links get titles chosen by the remote, so nothing
// more specific can be awaited. A timeout yields an empty result, not an error.
func WaitForAnyNewTitle(ctx context.Context, r Remote, before []string, w Waiter) ([]string, error) {
	var added []string

	err := w.Until(ctx, func(ctx context.Context) (bool, error) {
		items, err := r.ListItems(ctx)
		if err != nil {
			return false, err
		}
		added = NewTitles(before, domain.ItemTitles(items))
		return len(added) > 0, nil
	})
	if err != nil && !isTimeout(err) {
		return added, err
	}
	return added, nil
}

// WaitForTitleGone polls r until no source carries title
func WaitForTitleGone(ctx context.Context, r Remote, title string, w Waiter) error {
	return WaitForTitleCountBelow(ctx, r, title, 1, w)
}

// WaitForTitleCountBelow polls r until fewer than limit sources carry title
func WaitForTitleCountBelow(ctx context.Context, r Remote, title string, limit int, w Waiter) error {
	return w.Until(ctx, func(ctx context.Context) (bool, error) {
		items, err := r.ListItems(ctx)
		if err != nil {
			return false, err
		}
		return CountTitle(items, title) < limit, nil
	})
}

// CountTitle counts sources whose title equals title exactly
func CountTitle(items []domain.RemoteItem, title string) int {
	n := 0
	for _, item := range items {
		if item.Title == title {
			n++
		}
	}
	return n
}

func containsAll(have, want []string) bool {
	counts := make(map[string]int, len(have))
	for _, t := range have {
		counts[t]++
	}
	for _, t := range want {
		if counts[t] == 0 {
			return false
		}
		counts[t]--
	}
	return true
}

func isTimeout(err error) bool {
	return errors.Is(err, domain.ErrTimeout)
}
