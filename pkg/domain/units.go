package domain

import (
	"math"

	dErrors "issuance/pkg/domain-errors"
)

// AddUnits returns total+delta, rejecting results outside int64 instead of
// wrapping.
func AddUnits(total, delta int64) (int64, error) {
	if (delta > 0 && total > math.MaxInt64-delta) || (delta < 0 && total < math.MinInt64-delta) {
		return 0, dErrors.Newf(dErrors.CodeValidation, "unit count overflow: %d %+d", total, delta)
	}
	return total + delta, nil
}
