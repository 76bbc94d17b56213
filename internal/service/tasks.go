package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"taskflow/internal/domain/errors"
	"taskflow/internal/domain/models"
	"taskflow/internal/logging"

	"github.com/go-playground/validator"
	"github.com/google/uuid"
)

// CreateTaskInput is a task as submitted by its owner. Nil means "use the
// default".
type CreateTaskInput struct {
	Title       string
	Description *string
	Status      *string
}

// TaskPatch lists the fields to change. Nil fields are left alone.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *string
}

type Tasks struct {
	store TaskStore
	valid *validator.Validate
	log   logging.Logger
	now   func() time.Time
}

func NewTasks(store TaskStore, log logging.Logger) *Tasks {
	return &Tasks{
		store: store,
		valid: newValidator(),
		log:   log,
		now:   time.Now,
	}
}

// List returns the owner's tasks, newest first. Never nil.
func (s *Tasks) List(ctx context.Context, ownerID string) ([]models.Task, error) {
	tasks, err := s.store.GetTasks(ctx, ownerID)
	if err != nil {
		return nil, internal("list tasks", err)
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

func (s *Tasks) Get(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	taskID, ok := canonicalID(taskID)
	if !ok {
		return nil, errors.ErrNotFound
	}
	task, err := s.store.GetTaskByID(ctx, ownerID, taskID)
	if err != nil {
		return nil, notFoundOrInternal("get task", err)
	}
	return task, nil
}

func (s *Tasks) Create(ctx context.Context, ownerID string, in CreateTaskInput) (*models.Task, error) {
	title, err := normalizeTitle(s.valid, in.Title)
	if err != nil {
		return nil, err
	}

	description := ""
	if in.Description != nil {
		if description, err = normalizeDescription(s.valid, *in.Description); err != nil {
			return nil, err
		}
	}

	status := models.StatusToDo
	if in.Status != nil && *in.Status != "" {
		if status, err = normalizeStatus(s.valid, *in.Status); err != nil {
			return nil, err
		}
	}

	task := &models.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Status:      status,
		OwnerID:     ownerID,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, notFoundOrInternal("create task", err)
	}

	s.log.Debug(ctx, "task created", "task_id", task.ID, "owner_id", ownerID)
	return task, nil
}

// Update validates every supplied field before touching storage, so a
// rejected patch changes nothing.
func (s *Tasks) Update(ctx context.Context, ownerID, taskID string, patch TaskPatch) (*models.Task, error) {
	var changes models.TaskChanges

	if patch.Title != nil {
		title, err := normalizeTitle(s.valid, *patch.Title)
		if err != nil {
			return nil, err
		}
		changes.Title = &title
	}
	if patch.Description != nil {
		description, err := normalizeDescription(s.valid, *patch.Description)
		if err != nil {
			return nil, err
		}
		changes.Description = &description
	}
	if patch.Status != nil {
		status, err := normalizeStatus(s.valid, *patch.Status)
		if err != nil {
			return nil, err
		}
		changes.Status = &status
	}

	taskID, ok := canonicalID(taskID)
	if !ok {
		return nil, errors.ErrNotFound
	}

	var (
		task *models.Task
		err  error
	)
	if changes.Empty() {
		task, err = s.store.GetTaskByID(ctx, ownerID, taskID)
	} else {
		task, err = s.store.UpdateTask(ctx, ownerID, taskID, changes)
	}
	if err != nil {
		return nil, notFoundOrInternal("update task", err)
	}
	return task, nil
}

// Delete removes the task and returns what was removed.
func (s *Tasks) Delete(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	taskID, ok := canonicalID(taskID)
	if !ok {
		return nil, errors.ErrNotFound
	}
	task, err := s.store.DeleteTask(ctx, ownerID, taskID)
	if err != nil {
		return nil, notFoundOrInternal("delete task", err)
	}
	s.log.Debug(ctx, "task deleted", "task_id", taskID, "owner_id", ownerID)
	return task, nil
}

// canonicalID returns the canonical form of a task id. Ids that cannot have
// been issued by Create are reported as not found by the callers.
func canonicalID(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

func notFoundOrInternal(op string, err error) error {
	if stderrors.Is(err, errors.ErrNotFound) {
		return errors.ErrNotFound
	}
	return internal(op, err)
}

func internal(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", errors.ErrInternal, op, err)
}
