package adapter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/nbsync/internal/adapter"
	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/testutil"
)

var fast = adapter.Waiter{Interval: time.Millisecond, Timeout: 50 * time.Millisecond}

func TestNewTitles_Multiset(t *testing.T) {
	before := []string{"a.md", "b.md", "a.md"}
	current := []string{"a.md", "a.md", "a.md", "b.md", "c.md"}

	assert.Equal(t, []string{"a.md", "c.md"}, adapter.NewTitles(before, current))
	assert.Empty(t, adapter.NewTitles(current, before))
}

func TestWaiter_Timeout(t *testing.T) {
	err := fast.Until(context.Background(), func(context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestWaiter_ConditionError(t *testing.T) {
	boom := errors.New("boom")
	err := fast.Until(context.Background(), func(context.Context) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestWaitForNewTitles_Lagging(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeRemote("old.md")
	remote.SetLag(3)

	require.NoError(t, remote.Upload(ctx, []string{"/tmp/x/new.md"}))

	added, err := adapter.WaitForNewTitles(ctx, remote, []string{"old.md"}, []string{"new.md"}, fast)
	require.NoError(t, err)
	assert.Equal(t, []string{"new.md"}, added)
}

func TestWaitForNewTitles_PartialAppearance(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeRemote()
	remote.NeverAppear["lost.md"] = true

	require.NoError(t, remote.Upload(ctx, []string{"/d/ok.md", "/d/lost.md"}))

	added, err := adapter.WaitForNewTitles(ctx, remote, nil, []string{"ok.md", "lost.md"}, fast)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.md"}, added)
}

func TestWaitForNewTitles_ListError(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeRemote()
	remote.FailNext("list", domain.ErrRemoteAuth)

	_, err := adapter.WaitForNewTitles(ctx, remote, nil, []string{"x.md"}, fast)
	assert.ErrorIs(t, err, domain.ErrRemoteAuth)
}

func TestWaitForTitleGone(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeRemote("a.md", "b.md")

	ok, err := remote.Delete(ctx, "a.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NoError(t, adapter.WaitForTitleGone(ctx, remote, "a.md", fast))

	remote.StuckDeletes["b.md"] = true
	_, err = remote.Delete(ctx, "b.md")
	require.NoError(t, err)
	assert.ErrorIs(t, adapter.WaitForTitleGone(ctx, remote, "b.md", fast), domain.ErrTimeout)
}

func TestWaitForTitleCountBelow_Duplicates(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeRemote("dup.md", "dup.md", "other.md")

	items, err := remote.ListItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.CountTitle(items, "dup.md"))

	_, err = remote.Delete(ctx, "dup.md")
	require.NoError(t, err)
	require.NoError(t, adapter.WaitForTitleCountBelow(ctx, remote, "dup.md", 2, fast))
	assert.ErrorIs(t, adapter.WaitForTitleGone(ctx, remote, "dup.md", fast), domain.ErrTimeout)
}

func TestArtifactName(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "20250304T050607Z-sync-sources-attempt2", adapter.ArtifactName(at, "sync-sources", 2))
	assert.Equal(t, "a-b.c", adapter.SafeName(" a/b.c "))
	assert.Equal(t, "item", adapter.SafeName("///"))
}
