package ledger

import "time"

type LeaderboardRow struct {
	UserID  int64   `json:"user_id"`
	Balance float64 `json:"balance"`
}

type ActivityRow struct {
	UserID int64 `json:"user_id"`
	Games  int64 `json:"games"`
}

// AdjustInput describes one balance mutation. IdempotencyKey is optional;
// when set, replaying the same key for the same user returns
// ErrDuplicateAdjust instead of applying the delta twice.
type AdjustInput struct {
	UserID         int64
	Delta          float64
	Reason         string
	IdempotencyKey string
}

type RedistributeResult struct {
	Total    float64 `json:"total"`
	Share    float64 `json:"share"`
	Adjusted []int64 `json:"adjusted"`
}

// changeEvent is one audit-log row as read back during history replay.
type changeEvent struct {
	Delta float64
	At    time.Time
}

// HistoryPoint is one charted sample: a display label and the running
// balance at that instant. Rendering is the caller's problem.
type HistoryPoint struct {
	Label   string  `json:"label"`
	Balance float64 `json:"balance"`
}

type UserHistory struct {
	UserID int64          `json:"user_id"`
	Points []HistoryPoint `json:"points"`
}

// Drift is one user whose stored balance no longer matches the replayed sum
// of their audit-log deltas.
type Drift struct {
	UserID   int64   `json:"user_id"`
	Balance  float64 `json:"balance"`
	Replayed float64 `json:"replayed"`
}
