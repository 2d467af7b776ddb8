package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"hrpay/internal/platform/db"
)

type Store struct {
	DB db.TxQuerier
}

func NewStore(conn db.TxQuerier) *Store {
	return &Store{DB: conn}
}

type scanner interface {
	Scan(dest ...any) error
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullDecimal(value *decimal.Decimal) decimal.NullDecimal {
	if value == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*value)
}

func decimalPtr(value decimal.NullDecimal) *decimal.Decimal {
	if !value.Valid {
		return nil
	}
	d := value.Decimal
	return &d
}

// notFound maps a missing row, or an id that is not a valid uuid, to sentinel.
func notFound(err error, sentinel error, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", sentinel, id)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
		return fmt.Errorf("%w: %s", sentinel, id)
	}
	return err
}

func dateArg(t time.Time) time.Time {
	return dateOnly(t)
}

func dateArgPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dateOnly(*t)
}

func marshalJSON(value any) ([]byte, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func withTx(ctx context.Context, conn db.TxQuerier, fn func(tx pgx.Tx) error) error {
	return db.WithTransaction(ctx, conn, fn)
}
