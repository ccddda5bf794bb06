package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tipflow-ledger/internal/interfaces"
	"tipflow-ledger/internal/models"
	"tipflow-ledger/internal/validation"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var _ interfaces.SessionStore = (*Store)(nil)

// sessionRow is the nullable column form of a withdraw session
type sessionRow struct {
	ID          uuid.UUID
	Contract    string
	Status      string
	TxHash      sql.NullString
	ConfirmedBy sql.NullString
	ErrorDetail sql.NullString
	StartedAt   time.Time
	FinishedAt  sql.NullTime
}

func toRow(session models.WithdrawSession) sessionRow {
	row := sessionRow{
		ID:          session.ID,
		Contract:    session.Contract.Hex(),
		Status:      session.Status.String(),
		ConfirmedBy: sql.NullString{String: string(session.ConfirmedBy), Valid: session.ConfirmedBy != ""},
		ErrorDetail: sql.NullString{String: session.ErrorDetail, Valid: session.ErrorDetail != ""},
		StartedAt:   session.StartedAt,
		FinishedAt:  sql.NullTime{Time: session.FinishedAt, Valid: !session.FinishedAt.IsZero()},
	}
	if session.TxHash != nil {
		row.TxHash = sql.NullString{String: session.TxHash.Hex(), Valid: true}
	}
	return row
}

func (r sessionRow) toSession() (models.WithdrawSession, error) {
	session := models.WithdrawSession{
		ID:          r.ID,
		Contract:    common.HexToAddress(r.Contract),
		Status:      models.WithdrawStatus(r.Status),
		ConfirmedBy: models.ConfirmationSource(r.ConfirmedBy.String),
		ErrorDetail: r.ErrorDetail.String,
		StartedAt:   r.StartedAt,
	}
	if r.TxHash.Valid {
		if err := validation.ValidateTxHash(r.TxHash.String); err != nil {
			return models.WithdrawSession{}, fmt.Errorf("withdraw session %s: %w", r.ID, err)
		}
		hash := common.HexToHash(r.TxHash.String)
		session.TxHash = &hash
	}
	if r.FinishedAt.Valid {
		session.FinishedAt = r.FinishedAt.Time
	}
	return session, nil
}

// SaveWithdrawSession upserts a session by ID
func (s *Store) SaveWithdrawSession(ctx context.Context, session models.WithdrawSession) error {
	row := toRow(session)
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO withdraw_sessions (id, chain, contract, status, tx_hash, confirmed_by, error_detail, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			tx_hash = EXCLUDED.tx_hash,
			confirmed_by = EXCLUDED.confirmed_by,
			error_detail = EXCLUDED.error_detail,
			finished_at = EXCLUDED.finished_at
	`, row.ID, s.Chain, row.Contract, row.Status, row.TxHash, row.ConfirmedBy, row.ErrorDetail, row.StartedAt, row.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to save withdraw session %s: %w", session.ID, err)
	}
	return nil
}

// ListWithdrawSessions returns the sessions of a contract, newest first
func (s *Store) ListWithdrawSessions(ctx context.Context, contract common.Address, limit, offset int) ([]models.WithdrawSession, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, contract, status, tx_hash, confirmed_by, error_detail, started_at, finished_at
		FROM withdraw_sessions
		WHERE chain = $1 AND contract = $2
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4
	`, s.Chain, contract.Hex(), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.WithdrawSession
	for rows.Next() {
		var r sessionRow
		err := rows.Scan(&r.ID, &r.Contract, &r.Status, &r.TxHash, &r.ConfirmedBy, &r.ErrorDetail, &r.StartedAt, &r.FinishedAt)
		if err != nil {
			return nil, err
		}
		session, err := r.toSession()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}
