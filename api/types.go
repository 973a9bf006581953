package api

import (
	"context"

	"quicktask/domain"
)

// Service is the task operation set exposed over HTTP.
type Service interface {
	Resolve(ctx context.Context, ownerID string, c domain.Criteria) (domain.TaskList, error)
	Get(ctx context.Context, ownerID, id string) (domain.Task, error)
	Create(ctx context.Context, ownerID string, d domain.TaskDraft) (domain.Task, error)
	Update(ctx context.Context, ownerID, id string, p domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, ownerID, id string) (domain.Task, error)
}

// Authenticator is implemented by types able to extract owner IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, ownerID, key string) (bool, error)
	// Remove deletes a previously added key, used when the create fails.
	Remove(ctx context.Context, ownerID, key string) error
}
