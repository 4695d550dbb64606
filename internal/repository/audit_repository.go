package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/segyhp/loan-origination/internal/domain"
)

type auditRepository struct {
	db *PostgresDB
}

func NewAuditRepository(db *PostgresDB) AuditRepository {
	return &auditRepository{db: db}
}

// auditRow carries details as raw JSONB
type auditRow struct {
	ID            uuid.UUID     `db:"id"`
	ApplicationID uuid.UUID     `db:"application_id"`
	EventType     string        `db:"event_type"`
	PreviousState domain.Status `db:"previous_state"`
	NewState      domain.Status `db:"new_state"`
	ActorID       string        `db:"actor_id"`
	Timestamp     time.Time     `db:"timestamp"`
	Details       []byte        `db:"details"`
}

func (r *auditRepository) Append(ctx context.Context, event *domain.AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO audit_events (id, application_id, event_type, previous_state, new_state, actor_id, timestamp, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.executor(ctx).ExecContext(ctx, query,
		event.ID,
		event.ApplicationID,
		event.EventType,
		event.PreviousState,
		event.NewState,
		event.ActorID,
		event.Timestamp,
		details,
	)

	return err
}

func (r *auditRepository) ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*domain.AuditEvent, error) {
	query := `
		SELECT id, application_id, event_type, previous_state, new_state, actor_id, timestamp, details
		FROM audit_events
		WHERE application_id = $1
		ORDER BY seq
	`

	var rows []auditRow
	if err := sqlx.SelectContext(ctx, r.db.executor(ctx), &rows, query, applicationID); err != nil {
		return nil, err
	}

	events := make([]*domain.AuditEvent, 0, len(rows))
	for _, row := range rows {
		details := map[string]interface{}{}
		if len(row.Details) > 0 {
			if err := json.Unmarshal(row.Details, &details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details for %s: %w", row.ID, err)
			}
		}
		events = append(events, &domain.AuditEvent{
			ID:            row.ID,
			ApplicationID: row.ApplicationID,
			EventType:     row.EventType,
			PreviousState: row.PreviousState,
			NewState:      row.NewState,
			ActorID:       row.ActorID,
			Timestamp:     row.Timestamp,
			Details:       details,
		})
	}

	return events, nil
}
