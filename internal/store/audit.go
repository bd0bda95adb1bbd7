package store

import (
	"context"
	"encoding/json"
)

// AppendAudit writes an audit event. The log is append-only and never read
// back for compliance decisions.
func (s *Store) AppendAudit(ctx context.Context, e AuditEvent) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO audit_events(event_type, org_id, user_id, actor_id, actor_login, payload)
VALUES($1,$2::uuid,$3,$4,$5,$6::jsonb)
`, e.EventType, e.OrganizationID, e.UserID, e.ActorID, e.ActorLogin, string(payload))
	return err
}
