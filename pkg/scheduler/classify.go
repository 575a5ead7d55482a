package scheduler

import (
	"fmt"

	"github.com/arnavshah/coordination-api/pkg/models"
)

// DetermineNegotiationType decides which conflict shape applies to a group of
// unsatisfied members competing for a block of totalSlots slots. Rules are
// checked in order and the first match wins.
func DetermineNegotiationType(unsatisfied []models.UnsatisfiedMember, totalNeeded, totalSlots int) (models.NegotiationType, error) {
	if len(unsatisfied) == 0 {
		return "", fmt.Errorf("%w: no unsatisfied members to classify", ErrInvalidArgument)
	}

	perMember := unsatisfied[0].OriginallyNeededSlots
	same := true
	for _, m := range unsatisfied[1:] {
		if m.OriginallyNeededSlots != perMember {
			same = false
			break
		}
	}

	if same {
		numberOfOptions := totalSlots - perMember + 1
		if numberOfOptions >= 2 {
			return models.NegotiationTimeSlotChoice, nil
		}
	}

	if totalNeeded == totalSlots && len(unsatisfied) == 2 {
		return models.NegotiationPartialConflict, nil
	}

	return models.NegotiationFullConflict, nil
}
