package storage

import (
	"context"
	"sort"
	"sync"

	"taskflow/internal/domain/errors"
	"taskflow/internal/domain/models"
)

// Storage keeps users and tasks in process memory. One lock guards both
// maps, which gives every call the single-document atomicity a real store
// provides.
type Storage struct {
	mu     sync.RWMutex
	users  map[string]models.User
	emails map[string]string
	tasks  map[string]models.Task
}

func NewStorage() *Storage {
	return &Storage{
		users:  make(map[string]models.User),
		emails: make(map[string]string),
		tasks:  make(map[string]models.Task),
	}
}

func (s *Storage) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.emails[user.Email]; exists {
		return errors.ErrDuplicateEmail
	}
	s.users[user.ID] = *user
	s.emails[user.Email] = user.ID
	return nil
}

func (s *Storage) GetUserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, errors.ErrNotFound
	}
	return &user, nil
}

func (s *Storage) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.emails[email]
	if !exists {
		return nil, errors.ErrNotFound
	}
	user := s.users[id]
	return &user, nil
}

func (s *Storage) DeleteUser(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[id]
	if !exists {
		return false, nil
	}
	delete(s.emails, user.Email)
	delete(s.users, id)
	return true, nil
}

// CreateTask rejects tasks whose owner no longer exists, matching the
// foreign key of the SQL store.
func (s *Storage) CreateTask(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[task.OwnerID]; !exists {
		return errors.ErrNotFound
	}
	s.tasks[task.ID] = *task
	return nil
}

func (s *Storage) GetTasks(_ context.Context, ownerID string) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := []models.Task{}
	for _, t := range s.tasks {
		if t.OwnerID == ownerID {
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID > tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (s *Storage) GetTaskByID(_ context.Context, ownerID, taskID string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[taskID]
	if !exists || task.OwnerID != ownerID {
		return nil, errors.ErrNotFound
	}
	return &task, nil
}

func (s *Storage) UpdateTask(_ context.Context, ownerID, taskID string, changes models.TaskChanges) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists || task.OwnerID != ownerID {
		return nil, errors.ErrNotFound
	}
	changes.Apply(&task)
	s.tasks[taskID] = task
	return &task, nil
}

func (s *Storage) DeleteTask(_ context.Context, ownerID, taskID string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists || task.OwnerID != ownerID {
		return nil, errors.ErrNotFound
	}
	delete(s.tasks, taskID)
	return &task, nil
}

func (s *Storage) DeleteTasksByOwner(_ context.Context, ownerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.tasks {
		if t.OwnerID == ownerID {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}
