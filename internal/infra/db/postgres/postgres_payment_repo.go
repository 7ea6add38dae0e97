package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"tutoring-payment-service/internal/domain"
	"tutoring-payment-service/internal/domain/model"
	"tutoring-payment-service/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, enrollment_id, provider, provider_id, amount, currency, description, recurring, status, confirmation_url, refunded, created_at, updated_at, paid_at, due_at, meta`

func (r *paymentRepo) Save(ctx context.Context, p *model.Payment) error {
	const q = `
INSERT INTO payments (` + paymentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO UPDATE SET
  status=$10, confirmation_url=$11, refunded=$12, updated_at=$14, paid_at=$15, due_at=$16, meta=$17;`

	_, err := r.pool.Exec(ctx, q,
		p.ID, p.UserID, p.EnrollmentID, p.Provider, p.ProviderID, p.Amount, p.Currency,
		p.Description, p.Recurring, p.Status, p.Confirmation, p.Refunded,
		p.CreatedAt, p.UpdatedAt, p.PaidAt, p.DueAt, p.Meta,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save payment: %w", err)
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, id string) (*model.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1;`
	return r.scanOne(r.pool.QueryRow(ctx, q, id))
}

func (r *paymentRepo) FindByProviderID(ctx context.Context, providerID string) (*model.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE provider_id=$1 LIMIT 1;`
	return r.scanOne(r.pool.QueryRow(ctx, q, providerID))
}

func (r *paymentRepo) UpdateStatusIfPending(ctx context.Context, id string, status model.PaymentStatus, paidAt *time.Time) (bool, error) {
	const q = `
UPDATE payments SET status=$2, paid_at=COALESCE($3, paid_at), updated_at=NOW()
WHERE id=$1 AND status NOT IN ('succeeded','canceled');`
	tag, err := r.pool.Exec(ctx, q, id, status, paidAt)
	if err != nil {
		return false, fmt.Errorf("update payment status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentRepo) MarkRefunded(ctx context.Context, id string) error {
	const q = `UPDATE payments SET refunded=TRUE, updated_at=NOW() WHERE id=$1;`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("mark refunded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentRepo) ListByUser(ctx context.Context, userID string) ([]*model.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE user_id=$1 ORDER BY created_at DESC;`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments by user: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Payment, error) {
	const q = `
SELECT ` + paymentColumns + ` FROM payments
WHERE status NOT IN ('succeeded','canceled') AND updated_at < $1
ORDER BY updated_at ASC
LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *paymentRepo) SumByPeriod(ctx context.Context, period string) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount),0) FROM payments WHERE status='succeeded' AND paid_at >= DATE_TRUNC($1, NOW());`
	var sum int64
	if err := r.pool.QueryRow(ctx, q, period).Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

func (r *paymentRepo) scanOne(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.EnrollmentID, &p.Provider, &p.ProviderID, &p.Amount, &p.Currency,
		&p.Description, &p.Recurring, &p.Status, &p.Confirmation, &p.Refunded,
		&p.CreatedAt, &p.UpdatedAt, &p.PaidAt, &p.DueAt, &p.Meta,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *paymentRepo) scanAll(rows pgx.Rows) ([]*model.Payment, error) {
	var out []*model.Payment
	for rows.Next() {
		p, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return out, nil
}
