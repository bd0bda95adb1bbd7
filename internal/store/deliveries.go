package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ReserveDelivery claims a webhook delivery id. The primary key on
// delivery_id makes this the single synchronization point for at-least-once
// delivery: exactly one concurrent caller gets reserved=true.
func (s *Store) ReserveDelivery(ctx context.Context, deliveryID, event string) (reserved bool, err error) {
	var id string
	err = s.DB.QueryRow(ctx, `
INSERT INTO webhook_deliveries(delivery_id, event)
VALUES($1,$2)
ON CONFLICT (delivery_id) DO NOTHING
RETURNING delivery_id
`, deliveryID, event).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
