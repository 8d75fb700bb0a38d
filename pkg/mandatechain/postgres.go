package mandatechain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists sessions as jsonb rows, one per session key. It is
// the durable option for deployments where the customer agent restarts
// mid-conversation.
type PostgresStore struct{ DB *pgxpool.Pool }

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore { return &PostgresStore{DB: db} }

func (p *PostgresStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	var data []byte
	err := p.DB.QueryRow(ctx,
		`SELECT session FROM mandate_sessions WHERE session_id=$1`, sessionID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

func (p *PostgresStore) Save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = p.DB.Exec(ctx, `INSERT INTO mandate_sessions(session_id,session,updated_at)
VALUES($1,$2::jsonb,now())
ON CONFLICT (session_id) DO UPDATE SET session=EXCLUDED.session, updated_at=now()`,
		session.SessionID, data)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	_, err := p.DB.Exec(ctx, `DELETE FROM mandate_sessions WHERE session_id=$1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
