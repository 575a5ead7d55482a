package scheduler

import (
	"fmt"
	"sort"

	"github.com/arnavshah/coordination-api/pkg/models"
)

// NeedTracker follows how many slots each non-owner member still requires
// during one scheduling pass. The original requirement is frozen when the
// tracker is built; only Assign lowers the remaining need.
type NeedTracker struct {
	original map[string]int
	assigned map[string]int
	priority map[string]int
	order    []string
}

// NewNeedTracker validates the roster and snapshots every non-owner
// member's requirement. A member without a requirement is rejected.
func NewNeedTracker(members []models.Member) (*NeedTracker, error) {
	t := &NeedTracker{
		original: make(map[string]int, len(members)),
		assigned: make(map[string]int, len(members)),
		priority: make(map[string]int, len(members)),
	}
	for _, m := range members {
		if m.IsOwner {
			continue
		}
		if m.ID == "" {
			return nil, fmt.Errorf("%w: member without id", ErrInvalidArgument)
		}
		if m.RequiredSlots == nil {
			return nil, fmt.Errorf("%w: member %s", ErrMissingRequirement, m.ID)
		}
		if *m.RequiredSlots < 0 {
			return nil, fmt.Errorf("%w: member %s requires %d slots", ErrInvalidArgument, m.ID, *m.RequiredSlots)
		}
		if _, dup := t.original[m.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate member %s", ErrInvalidArgument, m.ID)
		}
		t.original[m.ID] = *m.RequiredSlots
		t.priority[m.ID] = m.Priority
		t.order = append(t.order, m.ID)
	}

	// Highest priority first, ids break ties
	sort.SliceStable(t.order, func(i, j int) bool {
		pi, pj := t.priority[t.order[i]], t.priority[t.order[j]]
		if pi != pj {
			return pi > pj
		}
		return t.order[i] < t.order[j]
	})
	return t, nil
}

// Need returns the member's remaining and original requirement
func (t *NeedTracker) Need(memberID string) (models.UnsatisfiedMember, error) {
	orig, ok := t.original[memberID]
	if !ok {
		return models.UnsatisfiedMember{}, fmt.Errorf("%w: unknown member %s", ErrInvalidArgument, memberID)
	}
	needed := orig - t.assigned[memberID]
	if needed < 0 {
		needed = 0
	}
	return models.UnsatisfiedMember{
		MemberID:              memberID,
		NeededSlots:           needed,
		OriginallyNeededSlots: orig,
	}, nil
}

// Assign records slots given to the member in this pass
func (t *NeedTracker) Assign(memberID string, slots int) error {
	if _, ok := t.original[memberID]; !ok {
		return fmt.Errorf("%w: unknown member %s", ErrInvalidArgument, memberID)
	}
	if slots <= 0 {
		return fmt.Errorf("%w: cannot assign %d slots", ErrInvalidArgument, slots)
	}
	t.assigned[memberID] += slots
	return nil
}

// Assigned is the number of slots the member holds in this pass
func (t *NeedTracker) Assigned(memberID string) int {
	return t.assigned[memberID]
}

// Unsatisfied lists members with a remaining need in priority order
func (t *NeedTracker) Unsatisfied() []models.UnsatisfiedMember {
	var out []models.UnsatisfiedMember
	for _, id := range t.order {
		need, _ := t.Need(id)
		if need.NeededSlots > 0 {
			out = append(out, need)
		}
	}
	return out
}

// Members returns every tracked member id in priority order
func (t *NeedTracker) Members() []string {
	return append([]string(nil), t.order...)
}
