package ledger

import (
	"context"
	"errors"
)

// RedistributeExcess zeroes out the global balance sum by spreading it
// evenly across the target set. A nil or empty target set means all known
// users. The total is always computed over every user, independent of the
// targets.
//
// Each per-user adjustment is its own transaction; the loop is deliberately
// not atomic across users. A mid-loop failure returns *PartialError so the
// caller sees exactly which targets were already adjusted.
func (s *Service) RedistributeExcess(ctx context.Context, targets []int64) (RedistributeResult, error) {
	var out RedistributeResult

	if len(targets) == 0 {
		all, err := s.AllUserIDs(ctx)
		if err != nil {
			return out, err
		}
		targets = all
	}
	if len(targets) == 0 {
		return out, ErrNoTargets
	}

	total, err := s.TotalExcess(ctx)
	if err != nil {
		return out, err
	}
	out.Total = total
	if nearZero(total) {
		return out, ErrNothingToRedistribute
	}

	out.Share = -total / float64(len(targets))
	for _, userID := range targets {
		err := s.Adjust(ctx, AdjustInput{
			UserID: userID,
			Delta:  out.Share,
			Reason: RedistributionReason,
		})
		if errors.Is(err, ErrUnknownUser) {
			// Mentioned but never initialized; give the row its share too.
			if err = s.EnsureUser(ctx, userID); err == nil {
				err = s.Adjust(ctx, AdjustInput{
					UserID: userID,
					Delta:  out.Share,
					Reason: RedistributionReason,
				})
			}
		}
		if err != nil {
			s.log.Error("redistribution aborted",
				"failed_user", userID,
				"adjusted", len(out.Adjusted),
				"share", out.Share,
				"err", err)
			return out, &PartialError{
				Adjusted:   out.Adjusted,
				FailedUser: userID,
				Err:        err,
			}
		}
		out.Adjusted = append(out.Adjusted, userID)
	}

	s.log.Info("excess redistributed",
		"total", out.Total,
		"share", out.Share,
		"targets", len(out.Adjusted))
	return out, nil
}
