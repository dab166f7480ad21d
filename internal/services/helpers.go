package services

import (
	"context"
	"log/slog"
	"slices"

	"github.com/learnio/learnio/internal/events"
	"github.com/learnio/learnio/internal/models"
)

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// requireRole fails unless actor holds one of roles
func requireRole(actor *models.User, resource, action string, roles ...models.UserRole) error {
	if actor == nil {
		return ErrUnauthenticated
	}
	if slices.Contains(roles, actor.Role) {
		return nil
	}
	return NewPermissionError(actor.Email, "", resource, action, "requires role "+joinRoles(roles))
}

func joinRoles(roles []models.UserRole) string {
	s := ""
	for i, r := range roles {
		if i > 0 {
			s += " or "
		}
		s += string(r)
	}
	return s
}

func isAdmin(actor *models.User) bool {
	return actor != nil && actor.Role == models.RoleAdmin
}

func sameEmail(a, b string) bool {
	return models.NormalizeEmail(a) == models.NormalizeEmail(b)
}

// publishEvent reports a committed write; a failed publish is logged and never undoes the write
func publishEvent(ctx context.Context, publisher events.EventPublisher, logger *slog.Logger, event *events.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Error("Failed to publish event",
			"event_type", event.Type,
			"subject", event.Subject,
			"error", err)
	}
}
