package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tally/internal/db"

	"github.com/jackc/pgx/v5"
)

// Service owns the ledger tables: one balance row per user, an append-only
// audit log of balance changes, and an append-only activity log. Every
// mutation goes straight to the store; nothing is cached in process.
type Service struct {
	db  db.Querier
	log *slog.Logger
	now func() time.Time
}

func NewService(q db.Querier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:  q,
		log: logger,
		now: time.Now,
	}
}

// EnsureUser creates the user's balance row at 0 if it does not exist yet.
// An existing balance is never overwritten.
func (s *Service) EnsureUser(ctx context.Context, userID int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return fmt.Errorf("ensure user %d: %w", userID, err)
	}
	return nil
}

// Adjust applies a delta to the user's balance and appends the matching
// audit-log event in one transaction. Neither write becomes visible without
// the other; the user's balance stays equal to the sum of their logged
// deltas.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin adjust: %w", err)
	}
	if err := applyAdjust(ctx, tx, in); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit adjust: %w", err)
	}
	return nil
}

func applyAdjust(ctx context.Context, tx pgx.Tx, in AdjustInput) error {
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		if err := claimIdempotency(ctx, tx, in.UserID, key, "adjust"); err != nil {
			return err
		}
	}

	// Atomic add in SQL, not read-modify-write: concurrent adjustments to
	// the same user must not lose updates.
	cmd, err := tx.Exec(ctx, `
		UPDATE users
		SET balance = balance + $1
		WHERE user_id = $2
	`, in.Delta, in.UserID)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUnknownUser
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO balance_changes (user_id, change, reason)
		VALUES ($1, $2, NULLIF($3, ''))
	`, in.UserID, in.Delta, strings.TrimSpace(in.Reason))
	if err != nil {
		return fmt.Errorf("append balance change: %w", err)
	}
	return nil
}

// Balance returns the user's current balance, 0 for unknown users.
func (s *Service) Balance(ctx context.Context, userID int64) (float64, error) {
	var balance float64
	err := s.db.QueryRow(ctx, `
		SELECT balance
		FROM users
		WHERE user_id = $1
	`, userID).Scan(&balance)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance %d: %w", userID, err)
	}
	return balance, nil
}

// Leaderboard returns up to limit users ordered by balance descending.
// Tie order between equal balances is whatever the store yields.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, balance
		FROM users
		ORDER BY balance DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard query: %w", err)
	}
	defer rows.Close()

	out := make([]LeaderboardRow, 0, limit)
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.UserID, &r.Balance); err != nil {
			return nil, fmt.Errorf("leaderboard scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordActivity appends one activity event for the user at the current
// instant, creating the user's balance row first if needed.
func (s *Service) RecordActivity(ctx context.Context, userID int64) error {
	if err := s.EnsureUser(ctx, userID); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO games_played (user_id)
		VALUES ($1)
	`, userID)
	if err != nil {
		return fmt.Errorf("record activity %d: %w", userID, err)
	}
	return nil
}

// ActivityCount counts distinct hour buckets containing at least one
// activity event for the user. A burst of events inside the same hour
// counts once.
func (s *Service) ActivityCount(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT date_trunc('hour', played_at))
		FROM games_played
		WHERE user_id = $1
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("activity count %d: %w", userID, err)
	}
	return count, nil
}

func (s *Service) ActivityLeaderboard(ctx context.Context, limit int) ([]ActivityRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, COUNT(DISTINCT date_trunc('hour', played_at)) AS games
		FROM games_played
		GROUP BY user_id
		ORDER BY games DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("activity leaderboard query: %w", err)
	}
	defer rows.Close()

	out := make([]ActivityRow, 0, limit)
	for rows.Next() {
		var r ActivityRow
		if err := rows.Scan(&r.UserID, &r.Games); err != nil {
			return nil, fmt.Errorf("activity leaderboard scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TotalExcess is the sum of all balances. A nonzero value means the group's
// virtual economy is unbalanced.
func (s *Service) TotalExcess(ctx context.Context) (float64, error) {
	var total float64
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(balance), 0)
		FROM users
	`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum balances: %w", err)
	}
	return total, nil
}

// AllUserIDs lists every known user, the default redistribution target set.
func (s *Service) AllUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id
		FROM users
		ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list users scan: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// VerifyLedger re-derives every balance from the audit log and returns the
// users whose stored balance drifted beyond Epsilon from the replayed sum.
// An empty result means the ledger invariant holds store-wide.
func (s *Service) VerifyLedger(ctx context.Context) ([]Drift, error) {
	rows, err := s.db.Query(ctx, `
		SELECT u.user_id, u.balance, COALESCE(SUM(c.change), 0) AS replayed
		FROM users u
		LEFT JOIN balance_changes c ON c.user_id = u.user_id
		GROUP BY u.user_id, u.balance
		HAVING ABS(u.balance - COALESCE(SUM(c.change), 0)) > $1
		ORDER BY u.user_id
	`, Epsilon)
	if err != nil {
		return nil, fmt.Errorf("verify ledger query: %w", err)
	}
	defer rows.Close()

	var out []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.UserID, &d.Balance, &d.Replayed); err != nil {
			return nil, fmt.Errorf("verify ledger scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func claimIdempotency(ctx context.Context, tx pgx.Tx, userID int64, key, action string) error {
	cmd, err := tx.Exec(ctx, `
		INSERT INTO idempotency_keys (user_id, key, action)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, key) DO NOTHING
	`, userID, key, action)
	if err != nil {
		return fmt.Errorf("claim idempotency: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateAdjust
	}
	return nil
}
