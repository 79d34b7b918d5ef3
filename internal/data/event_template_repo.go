package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/croniumhq/cronium-engine/internal/core"
	apperrors "github.com/croniumhq/cronium-engine/internal/errors"
)

// ErrEventTemplateNotFound is returned when no template is registered for an event.
var ErrEventTemplateNotFound = errors.New("event template not found")

// EventTemplateRepo stores the execution descriptor registered for each
// event. The outward gateway seeds these rows; the coordinator only reads.
type EventTemplateRepo struct {
	DB *sql.DB
}

// NewEventTemplateRepo creates a new EventTemplateRepo instance.
func NewEventTemplateRepo(db *sql.DB) *EventTemplateRepo {
	return &EventTemplateRepo{DB: db}
}

// ResolveJobTemplate returns the job template registered for the event.
func (r *EventTemplateRepo) ResolveJobTemplate(ctx context.Context, eventID int64) (*core.JobTemplate, error) {
	var tpl core.JobTemplate
	var payload []byte
	err := r.DB.QueryRowContext(ctx, `
		SELECT event_id, type, payload, priority
		FROM event_templates
		WHERE event_id = $1
	`, eventID).Scan(&tpl.EventID, &tpl.Type, &payload, &tpl.Priority)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve event template: %w", err)
	}
	tpl.Payload = append(json.RawMessage(nil), payload...)
	return &tpl, nil
}

// UpsertTemplate registers or replaces the template for an event.
func (r *EventTemplateRepo) UpsertTemplate(ctx context.Context, tpl *core.JobTemplate) error {
	if tpl == nil {
		return apperrors.Validation("template is required")
	}
	if !tpl.Type.Valid() {
		return apperrors.ValidationField("type", fmt.Sprintf("invalid job type: %s", tpl.Type))
	}
	if len(tpl.Payload) == 0 || !json.Valid(tpl.Payload) {
		return apperrors.ValidationField("payload", "template payload must be valid JSON")
	}
	if tpl.EventID <= 0 {
		return apperrors.ValidationField("event_id", "event id is required")
	}

	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO event_templates (event_id, type, payload, priority, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (event_id) DO UPDATE
		SET type = EXCLUDED.type,
		    payload = EXCLUDED.payload,
		    priority = EXCLUDED.priority,
		    updated_at = now()
	`, tpl.EventID, tpl.Type, []byte(tpl.Payload), tpl.Priority); err != nil {
		return fmt.Errorf("upsert event template: %w", apperrors.MapDBError(err))
	}
	return nil
}

var _ core.EventResolver = (*EventTemplateRepo)(nil)
