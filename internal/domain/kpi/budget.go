package kpi

// RemainingWeight is MaxWeight minus the weights of every KPI in existing
// other than excludingID. It can be negative when existing data already
// overshoots.
func RemainingWeight(existing []KPI, excludingID string) int {
	used := 0
	for _, k := range existing {
		if excludingID != "" && k.ID == excludingID {
			continue
		}
		used += k.Weight
	}
	return MaxWeight - used
}

// ValidateWeight rejects a candidate that is not positive or does not fit
// in remaining.
func ValidateWeight(candidate, remaining int) error {
	if candidate <= 0 {
		return ErrWeightExceeded.Withf("weight must be greater than zero")
	}
	if candidate > remaining {
		return ErrWeightExceeded.Withf("weight %d exceeds remaining budget %d", candidate, max(remaining, 0))
	}
	return nil
}
