// Package service holds the account and task operations that sit between
// the HTTP layer and storage. Every task operation takes the owner id from
// the verified session; no caller-supplied owner is ever accepted.
package service

import (
	"context"

	"taskflow/internal/domain/models"
)

// UserStore persists user identities. CreateUser must fail with
// errors.ErrDuplicateEmail when the email is taken, using a storage-level
// unique constraint as the authoritative guard.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	DeleteUser(ctx context.Context, id string) (bool, error)
}

// TaskStore persists tasks. Every method that names a task filters on the
// (taskID, ownerID) pair in one storage operation and reports
// errors.ErrNotFound for missing and foreign tasks alike.
type TaskStore interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTasks(ctx context.Context, ownerID string) ([]models.Task, error)
	GetTaskByID(ctx context.Context, ownerID, taskID string) (*models.Task, error)
	UpdateTask(ctx context.Context, ownerID, taskID string, changes models.TaskChanges) (*models.Task, error)
	DeleteTask(ctx context.Context, ownerID, taskID string) (*models.Task, error)
	DeleteTasksByOwner(ctx context.Context, ownerID string) (int64, error)
}
