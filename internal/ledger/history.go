package ledger

import (
	"context"
	"fmt"
	"time"
)

type seriesPoint struct {
	At      time.Time
	Balance float64
}

// History replays each requested user's audit-log deltas in timestamp order
// into a running-balance series, anchors it with a synthetic point at now
// equal to the current balance, and downsamples it to a chartable number of
// labeled points. Users are resolved independently; the result order follows
// the input order.
func (s *Service) History(ctx context.Context, userIDs []int64) ([]UserHistory, error) {
	now := s.now()
	out := make([]UserHistory, 0, len(userIDs))
	for _, userID := range userIDs {
		events, err := s.changeEvents(ctx, userID)
		if err != nil {
			return nil, err
		}
		balance, err := s.Balance(ctx, userID)
		if err != nil {
			return nil, err
		}
		series := buildSeries(events, balance, now)
		out = append(out, UserHistory{
			UserID: userID,
			Points: labelSeries(downsample(series, strideFor(series))),
		})
	}
	return out, nil
}

func (s *Service) changeEvents(ctx context.Context, userID int64) ([]changeEvent, error) {
	// id as tiebreak: events sharing a timestamp must replay in a stable
	// order or the reconstruction is not reproducible.
	rows, err := s.db.Query(ctx, `
		SELECT change, created_at
		FROM balance_changes
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("history query %d: %w", userID, err)
	}
	defer rows.Close()

	var out []changeEvent
	for rows.Next() {
		var ev changeEvent
		if err := rows.Scan(&ev.Delta, &ev.At); err != nil {
			return nil, fmt.Errorf("history scan %d: %w", userID, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// buildSeries cumulates the deltas into running balances and appends the
// synthetic (now, current balance) point that anchors the right edge of the
// chart. A user with no events yields just that single point.
func buildSeries(events []changeEvent, currentBalance float64, now time.Time) []seriesPoint {
	series := make([]seriesPoint, 0, len(events)+1)
	running := 0.0
	for _, ev := range events {
		running += ev.Delta
		series = append(series, seriesPoint{At: ev.At, Balance: running})
	}
	return append(series, seriesPoint{At: now, Balance: currentBalance})
}

// strideFor picks the keep-every-kth stride from the series span: spans
// strictly longer than a week chart at day granularity (at most 7 points),
// shorter spans at hour granularity (at most 7*24 points).
func strideFor(series []seriesPoint) int {
	n := len(series)
	budget := maxHourPoints
	if spanOf(series) > weekSpan {
		budget = maxDayPoints
	}
	stride := n / budget
	if stride < 1 {
		stride = 1
	}
	return stride
}

func spanOf(series []seriesPoint) time.Duration {
	if len(series) < 2 {
		return 0
	}
	return series[len(series)-1].At.Sub(series[0].At)
}

// downsample keeps every stride-th point starting at the first, plus the
// final point regardless: dropping it would lose the synthetic anchor.
func downsample(series []seriesPoint, stride int) []seriesPoint {
	if stride <= 1 || len(series) == 0 {
		return series
	}
	out := make([]seriesPoint, 0, len(series)/stride+2)
	for i := 0; i < len(series); i += stride {
		out = append(out, series[i])
	}
	if last := len(series) - 1; last%stride != 0 {
		out = append(out, series[last])
	}
	return out
}

func labelSeries(series []seriesPoint) []HistoryPoint {
	layout := hourLabelLayout
	if spanOf(series) > weekSpan {
		layout = dayLabelLayout
	}
	out := make([]HistoryPoint, 0, len(series))
	for _, p := range series {
		out = append(out, HistoryPoint{
			Label:   p.At.Format(layout),
			Balance: p.Balance,
		})
	}
	return out
}
