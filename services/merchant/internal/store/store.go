// Package store persists the merchant's orders, quoted payment requirements,
// settled nonces and received webhook events.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/x402"
	"github.com/Daehan-Base/awesome-x402-on-base/services/merchant/internal/settlement"
)

var ErrNotFound = errors.New("not found")

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// Order is one quoted cart waiting for payment.
type Order struct {
	PaymentDetailsID string    `json:"payment_details_id"`
	CartID           string    `json:"cart_id"`
	Drink            string    `json:"drink"`
	Size             string    `json:"size"`
	Bean             string    `json:"bean"`
	AmountMicro      int64     `json:"amount_micro"`
	Status           string    `json:"status"`
	CartExpiry       time.Time `json:"cart_expiry"`
	CreatedAt        time.Time `json:"created_at"`
}

const (
	OrderStatusQuoted  = "QUOTED"
	OrderStatusSettled = "SETTLED"
	OrderStatusFailed  = "FAILED"
)

func (s *Store) CreateOrder(ctx context.Context, o Order, req x402.PaymentRequirements) error {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal requirements: %w", err)
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO orders(payment_details_id,cart_id,drink,drink_size,bean,amount_micro,status,cart_expiry)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		o.PaymentDetailsID, o.CartID, o.Drink, o.Size, o.Bean, o.AmountMicro, OrderStatusQuoted, o.CartExpiry)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO quoted_requirements(payment_details_id,requirements)
VALUES($1,$2::jsonb)
ON CONFLICT (payment_details_id) DO UPDATE SET requirements=EXCLUDED.requirements`,
		o.PaymentDetailsID, reqJSON)
	if err != nil {
		return fmt.Errorf("insert requirements: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) GetOrder(ctx context.Context, detailsID string) (Order, error) {
	var o Order
	err := s.DB.QueryRow(ctx, `SELECT payment_details_id,cart_id,drink,drink_size,bean,amount_micro,status,cart_expiry,created_at
FROM orders WHERE payment_details_id=$1`, detailsID).
		Scan(&o.PaymentDetailsID, &o.CartID, &o.Drink, &o.Size, &o.Bean, &o.AmountMicro, &o.Status, &o.CartExpiry, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("load order: %w", err)
	}
	return o, nil
}

func (s *Store) SetOrderStatus(ctx context.Context, detailsID, status string) error {
	_, err := s.DB.Exec(ctx, `UPDATE orders SET status=$1, updated_at=now() WHERE payment_details_id=$2`, status, detailsID)
	return err
}

// RequirementsByDetailsID implements settlement.RequirementsSource; a miss is
// (nil, nil) so the coordinator can fall back to reconstruction.
func (s *Store) RequirementsByDetailsID(ctx context.Context, detailsID string) (*x402.PaymentRequirements, error) {
	var data []byte
	err := s.DB.QueryRow(ctx, `SELECT requirements FROM quoted_requirements WHERE payment_details_id=$1`, detailsID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load requirements: %w", err)
	}
	var req x402.PaymentRequirements
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("unmarshal requirements: %w", err)
	}
	return &req, nil
}

func (s *Store) LookupProcessed(ctx context.Context, nonce string) (*settlement.Result, error) {
	var data []byte
	err := s.DB.QueryRow(ctx, `SELECT result FROM processed_payments WHERE nonce=$1`, nonce).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup processed: %w", err)
	}
	var res settlement.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("unmarshal processed result: %w", err)
	}
	return &res, nil
}

func (s *Store) RecordProcessed(ctx context.Context, nonce string, res settlement.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.DB.Exec(ctx, `INSERT INTO processed_payments(nonce,result)
VALUES($1,$2::jsonb)
ON CONFLICT (nonce) DO NOTHING`, nonce, data)
	if err != nil {
		return fmt.Errorf("record processed: %w", err)
	}
	return nil
}

// Receipt binds the order to its settlement proof.
type Receipt struct {
	ReceiptID        string `json:"receipt_id"`
	PaymentDetailsID string `json:"payment_details_id"`
	CartHash         string `json:"cart_hash"`
	MandateHash      string `json:"mandate_hash"`
	Transaction      string `json:"transaction"`
	Network          string `json:"network"`
	Payer            string `json:"payer"`
}

func (s *Store) CreateReceipt(ctx context.Context, r Receipt) error {
	_, err := s.DB.Exec(ctx, `INSERT INTO receipts(receipt_id,payment_details_id,cart_hash,mandate_hash,transaction,network,payer)
VALUES($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (payment_details_id) DO NOTHING`,
		r.ReceiptID, r.PaymentDetailsID, r.CartHash, r.MandateHash, r.Transaction, r.Network, r.Payer)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

func (s *Store) GetReceipt(ctx context.Context, detailsID string) (Receipt, error) {
	var r Receipt
	err := s.DB.QueryRow(ctx, `SELECT receipt_id,payment_details_id,cart_hash,mandate_hash,transaction,network,payer
FROM receipts WHERE payment_details_id=$1`, detailsID).
		Scan(&r.ReceiptID, &r.PaymentDetailsID, &r.CartHash, &r.MandateHash, &r.Transaction, &r.Network, &r.Payer)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receipt{}, ErrNotFound
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("load receipt: %w", err)
	}
	return r, nil
}

// RecordWebhookEvent stores a delivery once; a duplicate event id reports
// alreadySeen=true so the handler can acknowledge without reprocessing.
func (s *Store) RecordWebhookEvent(ctx context.Context, eventID, eventType, bodyHash string) (alreadySeen bool, err error) {
	tag, err := s.DB.Exec(ctx, `INSERT INTO settlement_events(event_id,event_type,body_sha256)
VALUES($1,$2,$3)
ON CONFLICT (event_id) DO NOTHING`, eventID, eventType, bodyHash)
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	return tag.RowsAffected() == 0, nil
}
