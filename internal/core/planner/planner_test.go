package planner

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Ning0612/nbsync/internal/core/diff"
	"github.com/Ning0612/nbsync/internal/domain"
)

func local(pairs ...string) []domain.FileDescriptor {
	var out []domain.FileDescriptor
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, domain.FileDescriptor{
			Title:       pairs[i],
			SourcePath:  "/src/" + pairs[i],
			ContentHash: pairs[i+1],
		})
	}
	return out
}

func remote(titles ...string) []domain.RemoteItem {
	var out []domain.RemoteItem
	for _, title := range titles {
		out = append(out, domain.RemoteItem{Title: title})
	}
	return out
}

func TestPlan_Partition(t *testing.T) {
	p := NewDefaultPlanner()

	got, err := p.Plan(
		local("new.md", "h1", "same.md", "h2", "changed.md", "h3-new"),
		remote("same.md", "changed.md", "orphan.txt"),
		map[string]string{"same.md": "h2", "changed.md": "h3-old"},
		domain.PlanOptions{},
	)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	want := domain.Plan{
		ToAdd:     []string{"new.md"},
		ToUpdate:  []string{"changed.md"},
		ToDelete:  []string{},
		Unchanged: []string{"same.md"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_UnknownHistoryIsUpdated(t *testing.T) {
	p := NewDefaultPlanner()

	got, err := p.Plan(local("report.pdf", "h"), remote("report.pdf"), map[string]string{}, domain.PlanOptions{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if diff := cmp.Diff([]string{"report.pdf"}, got.ToUpdate); diff != "" {
		t.Errorf("ToUpdate mismatch (-want +got):\n%s", diff)
	}
	if len(got.Unchanged) != 0 {
		t.Errorf("Expected no unchanged titles, got %v", got.Unchanged)
	}
}

func TestPlan_OrphanIgnoredWithoutDeleteMissing(t *testing.T) {
	p := NewDefaultPlanner()

	got, err := p.Plan(local("a.md", "h"), remote("a.md", "orphan.txt"), map[string]string{"a.md": "h"}, domain.PlanOptions{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	for name, titles := range map[string][]string{
		"toAdd": got.ToAdd, "toUpdate": got.ToUpdate, "toDelete": got.ToDelete, "unchanged": got.Unchanged,
	} {
		for _, title := range titles {
			if title == "orphan.txt" {
				t.Errorf("orphan.txt should not appear in %s", name)
			}
		}
	}
}

func TestPlan_DeleteMissing(t *testing.T) {
	p := NewDefaultPlanner()

	got, err := p.Plan(
		local("keep.md", "h"),
		remote("keep.md", "z-old.md", "a-old.md", "a-old.md"),
		map[string]string{"keep.md": "h"},
		domain.PlanOptions{DeleteMissing: true},
	)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a-old.md", "z-old.md"}, got.ToDelete); diff != "" {
		t.Errorf("ToDelete mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_ForceUpdate(t *testing.T) {
	p := NewDefaultPlanner()

	got, err := p.Plan(
		local("a.md", "h", "b.md", "h2"),
		remote("a.md"),
		map[string]string{"a.md": "h"},
		domain.PlanOptions{ForceUpdate: true},
	)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a.md"}, got.ToUpdate); diff != "" {
		t.Errorf("ToUpdate mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b.md"}, got.ToAdd); diff != "" {
		t.Errorf("ToAdd mismatch (-want +got):\n%s", diff)
	}
}

// sizeComparer treats any file of the recorded size as unchanged
type sizeComparer map[string]int64

func (c sizeComparer) Compare(desc domain.FileDescriptor, recorded string) diff.DiffResult {
	if size, ok := c[desc.Title]; ok && size == desc.SizeBytes {
		return diff.Identical
	}
	return diff.Modified
}

func TestPlan_UsesComparer(t *testing.T) {
	p := NewPlanner(sizeComparer{"a.md": 3, "b.md": 3})

	files := []domain.FileDescriptor{
		{Title: "a.md", ContentHash: "h-new", SizeBytes: 3},
		{Title: "b.md", ContentHash: "h", SizeBytes: 4},
	}
	got, err := p.Plan(files, remote("a.md", "b.md"), map[string]string{"a.md": "h-old", "b.md": "h"}, domain.PlanOptions{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if d := cmp.Diff([]string{"a.md"}, got.Unchanged); d != "" {
		t.Errorf("Unchanged mismatch (-want +got):\n%s", d)
	}
	if d := cmp.Diff([]string{"b.md"}, got.ToUpdate); d != "" {
		t.Errorf("ToUpdate mismatch (-want +got):\n%s", d)
	}
}

// After applying a plan and recording hashes, a second run changes nothing
func TestPlan_Idempotent(t *testing.T) {
	p := NewDefaultPlanner()
	files := local("a.md", "ha", "b.md", "hb", "c.md", "hc")

	first, err := p.Plan(files, remote("b.md"), map[string]string{}, domain.PlanOptions{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if first.IsEmpty() {
		t.Fatal("first plan should have work")
	}

	prior := make(map[string]string)
	for _, f := range files {
		prior[f.Title] = f.ContentHash
	}

	second, err := p.Plan(files, remote("a.md", "b.md", "c.md"), prior, domain.PlanOptions{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(second.ToAdd) != 0 || len(second.ToUpdate) != 0 {
		t.Errorf("second plan should be a no-op, got %+v", second)
	}
	if diff := cmp.Diff([]string{"a.md", "b.md", "c.md"}, second.Unchanged); diff != "" {
		t.Errorf("Unchanged mismatch (-want +got):\n%s", diff)
	}
}

// toAdd, toUpdate and unchanged together are exactly the local titles
func TestPlan_PartitionProperty(t *testing.T) {
	p := NewDefaultPlanner()
	files := local("1", "a", "2", "b", "3", "c", "4", "d", "5", "e")
	prior := map[string]string{"2": "b", "3": "stale", "9": "gone"}

	for _, opts := range []domain.PlanOptions{{}, {ForceUpdate: true}, {DeleteMissing: true}} {
		got, err := p.Plan(files, remote("2", "3", "4", "9"), prior, opts)
		if err != nil {
			t.Fatalf("Plan failed: %v", err)
		}

		seen := map[string]int{}
		for _, list := range [][]string{got.ToAdd, got.ToUpdate, got.Unchanged} {
			for _, title := range list {
				seen[title]++
			}
		}
		if len(seen) != len(files) {
			t.Errorf("%+v: expected %d titles, got %v", opts, len(files), seen)
		}
		for title, n := range seen {
			if n != 1 {
				t.Errorf("%+v: title %s appears %d times", opts, title, n)
			}
		}
		for _, title := range got.ToDelete {
			if title != "9" {
				t.Errorf("%+v: unexpected delete %s", opts, title)
			}
		}
	}
}

func TestPlan_DuplicateTitles(t *testing.T) {
	p := NewDefaultPlanner()
	files := []domain.FileDescriptor{
		{Title: "same.md", SourcePath: "/a/same.md", ContentHash: "1"},
		{Title: "same.md", SourcePath: "/b/same.md", ContentHash: "2"},
	}

	_, err := p.Plan(files, nil, nil, domain.PlanOptions{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}
