package planner

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Ning0612/nbsync/internal/core/checksum"
	"github.com/Ning0612/nbsync/internal/core/diff"
	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/logger"
)

// Planner computes reconciliation plans
type Planner interface {
	Plan(local []domain.FileDescriptor, remote []domain.RemoteItem, prior map[string]string, opts domain.PlanOptions) (domain.Plan, error)
}

// DefaultPlanner partitions titles by remote presence and recorded hash.
// It performs no I/O, so the same inputs always yield the same plan.
type DefaultPlanner struct {
	comparer diff.Comparer
}

// NewDefaultPlanner creates a planner comparing content hashes
func NewDefaultPlanner() *DefaultPlanner {
	return NewPlanner(diff.NewHashComparer())
}

// NewPlanner creates a planner deciding staleness with c
func NewPlanner(c diff.Comparer) *DefaultPlanner {
	return &DefaultPlanner{comparer: c}
}

// Plan implements the Planner interface.
//
// Local titles missing remotely are added. Local titles present remotely are
// updated when forced, when no hash was recorded, or when the hash changed;
// otherwise they are unchanged. Remote-only titles are deleted only with
// DeleteMissing. Every output list is sorted.
func (p *DefaultPlanner) Plan(local []domain.FileDescriptor, remote []domain.RemoteItem, prior map[string]string, opts domain.PlanOptions) (domain.Plan, error) {
	if err := checksum.EnsureUniqueTitles(local); err != nil {
		return domain.Plan{}, err
	}

	remoteTitles := mapset.NewThreadUnsafeSet[string]()
	for _, item := range remote {
		remoteTitles.Add(item.Title)
	}
	localTitles := mapset.NewThreadUnsafeSet[string]()

	plan := domain.Plan{
		ToAdd:     []string{},
		ToUpdate:  []string{},
		ToDelete:  []string{},
		Unchanged: []string{},
	}

	for _, desc := range local {
		localTitles.Add(desc.Title)

		switch {
		case !remoteTitles.Contains(desc.Title):
			plan.ToAdd = append(plan.ToAdd, desc.Title)
		case opts.ForceUpdate:
			plan.ToUpdate = append(plan.ToUpdate, desc.Title)
		case p.comparer.Compare(desc, prior[desc.Title]).NeedsUpload():
			plan.ToUpdate = append(plan.ToUpdate, desc.Title)
		default:
			plan.Unchanged = append(plan.Unchanged, desc.Title)
		}
	}

	if opts.DeleteMissing {
		plan.ToDelete = remoteTitles.Difference(localTitles).ToSlice()
	}

	sort.Strings(plan.ToAdd)
	sort.Strings(plan.ToUpdate)
	sort.Strings(plan.ToDelete)
	sort.Strings(plan.Unchanged)

	logger.Get().Debug("computed plan",
		"add", len(plan.ToAdd),
		"update", len(plan.ToUpdate),
		"delete", len(plan.ToDelete),
		"unchanged", len(plan.Unchanged),
	)

	return plan, nil
}
