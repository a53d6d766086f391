package diff

import (
	"testing"

	"github.com/Ning0612/nbsync/internal/domain"
)

func TestHashComparer_Unknown(t *testing.T) {
	comparer := NewHashComparer()
	desc := domain.FileDescriptor{Title: "report.pdf", ContentHash: "abc"}

	if got := comparer.Compare(desc, ""); got != Unknown {
		t.Errorf("Expected Unknown for missing record, got %v", got)
	}
}

func TestHashComparer_Identical(t *testing.T) {
	comparer := NewHashComparer()
	desc := domain.FileDescriptor{Title: "a.md", ContentHash: "abc", SizeBytes: 10}

	if got := comparer.Compare(desc, "abc"); got != Identical {
		t.Errorf("Expected Identical, got %v", got)
	}
}

func TestHashComparer_Modified(t *testing.T) {
	comparer := NewHashComparer()
	desc := domain.FileDescriptor{Title: "a.md", ContentHash: "new"}

	if got := comparer.Compare(desc, "old"); got != Modified {
		t.Errorf("Expected Modified, got %v", got)
	}
}

func TestNeedsUpload(t *testing.T) {
	tests := []struct {
		result DiffResult
		want   bool
	}{
		{Unknown, true},
		{Identical, false},
		{Modified, true},
	}
	for _, tt := range tests {
		if got := tt.result.NeedsUpload(); got != tt.want {
			t.Errorf("%v.NeedsUpload() = %v, want %v", tt.result, got, tt.want)
		}
	}
}

func TestCompareHash(t *testing.T) {
	if CompareHash("x", "") != Unknown {
		t.Error("empty record should be Unknown")
	}
	if CompareHash("x", "x") != Identical {
		t.Error("equal hashes should be Identical")
	}
	if CompareHash("x", "y") != Modified {
		t.Error("different hashes should be Modified")
	}
}
