package httpapi

import (
	"context"

	"accessd.org/internal/audit"
)

// audit records a mutation on the access-control graph. Logging failures
// never fail the request.
func (a *API) audit(ctx context.Context, event, entity string, id int64, meta map[string]string) {
	fields := map[string]any{
		"entity": entity,
		"id":     id,
	}
	for k, v := range meta {
		fields[k] = v
	}
	_ = audit.LogEvent(ctx, event, fields)
}
