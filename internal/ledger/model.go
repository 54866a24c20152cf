package ledger

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// Epsilon absorbs floating rounding when deciding whether the global
	// balance sum is effectively zero.
	Epsilon = 1e-2

	// RedistributionReason is the audit-log reason written by
	// RedistributeExcess for every adjusted user.
	RedistributionReason = "excess redistribution"

	weekSpan = 7 * 24 * time.Hour

	dayLabelLayout  = "01/02/06"
	hourLabelLayout = "01/02/06-03PM"

	maxDayPoints  = 7
	maxHourPoints = 7 * 24
)

var (
	ErrUnknownUser           = errors.New("unknown user")
	ErrNoTargets             = errors.New("no redistribution targets")
	ErrNothingToRedistribute = errors.New("nothing to redistribute")
	ErrDuplicateAdjust       = errors.New("duplicate idempotency key")
)

// PartialError reports a redistribution that failed after adjusting some of
// its targets. The already-applied adjustments are not rolled back.
type PartialError struct {
	Adjusted   []int64
	FailedUser int64
	Err        error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("redistribution stopped at user %d after %d adjustment(s): %v",
		e.FailedUser, len(e.Adjusted), e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

func nearZero(total float64) bool {
	return math.Abs(total) <= Epsilon
}
