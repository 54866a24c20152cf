package ledger

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
)

func expectTotalExcess(mock pgxmock.PgxPoolIface, total float64) {
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(SUM(balance), 0)")).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(total))
}

func expectShareAdjust(mock pgxmock.PgxPoolIface, userID int64, share float64) {
	mock.ExpectBegin()
	expectUpdateBalance(mock, share, userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	expectAppendChange(mock, userID, share, RedistributionReason).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
}

func TestRedistributeExcessSplitsEvenly(t *testing.T) {
	svc, mock := newMockService(t)

	expectTotalExcess(mock, 30)
	expectShareAdjust(mock, 1, -15)
	expectShareAdjust(mock, 2, -15)

	result, err := svc.RedistributeExcess(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("RedistributeExcess: %v", err)
	}
	if result.Total != 30 || result.Share != -15 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Adjusted) != 2 || result.Adjusted[0] != 1 || result.Adjusted[1] != 2 {
		t.Fatalf("unexpected adjusted set: %v", result.Adjusted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRedistributeExcessNothingToDo(t *testing.T) {
	svc, mock := newMockService(t)

	expectTotalExcess(mock, 0.005)

	_, err := svc.RedistributeExcess(context.Background(), []int64{1, 2})
	if !errors.Is(err, ErrNothingToRedistribute) {
		t.Fatalf("expected ErrNothingToRedistribute, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRedistributeExcessDefaultsToAllUsers(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("SELECT user_id").
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).
			AddRow(int64(1)).
			AddRow(int64(2)).
			AddRow(int64(3)))
	expectTotalExcess(mock, 30)
	expectShareAdjust(mock, 1, -10)
	expectShareAdjust(mock, 2, -10)
	expectShareAdjust(mock, 3, -10)

	result, err := svc.RedistributeExcess(context.Background(), nil)
	if err != nil {
		t.Fatalf("RedistributeExcess: %v", err)
	}
	if result.Share != -10 || len(result.Adjusted) != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRedistributeExcessNoKnownUsers(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("SELECT user_id").
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}))

	_, err := svc.RedistributeExcess(context.Background(), nil)
	if !errors.Is(err, ErrNoTargets) {
		t.Fatalf("expected ErrNoTargets, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRedistributeExcessInitializesUnknownTarget(t *testing.T) {
	svc, mock := newMockService(t)

	expectTotalExcess(mock, 30)

	// First attempt hits a target with no balance row yet.
	mock.ExpectBegin()
	expectUpdateBalance(mock, -30, 5).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectShareAdjust(mock, 5, -30)

	result, err := svc.RedistributeExcess(context.Background(), []int64{5})
	if err != nil {
		t.Fatalf("RedistributeExcess: %v", err)
	}
	if len(result.Adjusted) != 1 || result.Adjusted[0] != 5 {
		t.Fatalf("unexpected adjusted set: %v", result.Adjusted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRedistributeExcessPartialFailure(t *testing.T) {
	svc, mock := newMockService(t)

	boom := errors.New("connection reset")
	expectTotalExcess(mock, 30)
	expectShareAdjust(mock, 1, -15)

	mock.ExpectBegin()
	expectUpdateBalance(mock, -15, 2).
		WillReturnError(boom)
	mock.ExpectRollback()

	_, err := svc.RedistributeExcess(context.Background(), []int64{1, 2})
	var partial *PartialError
	if !errors.As(err, &partial) {
		t.Fatalf("expected *PartialError, got %v", err)
	}
	if partial.FailedUser != 2 {
		t.Fatalf("expected failure on user 2, got %d", partial.FailedUser)
	}
	if len(partial.Adjusted) != 1 || partial.Adjusted[0] != 1 {
		t.Fatalf("unexpected adjusted set: %v", partial.Adjusted)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("partial error should wrap the cause, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
