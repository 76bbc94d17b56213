package models

import "time"

type Status string

const (
	StatusToDo       Status = "To Do"
	StatusInProgress Status = "In Progress"
	StatusDone       Status = "Done"
)

func (s Status) Valid() bool {
	switch s {
	case StatusToDo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// ParseStatus accepts the wire values and their unspaced spellings
// ("ToDo", "InProgress") and returns the wire value.
func ParseStatus(raw string) (Status, bool) {
	switch raw {
	case "ToDo":
		return StatusToDo, true
	case "InProgress":
		return StatusInProgress, true
	}
	s := Status(raw)
	return s, s.Valid()
}

const (
	MaxEmailLen       = 254
	MaxPasswordLen    = 100
	MaxTitleLen       = 100
	MaxDescriptionLen = 500
)

type User struct {
	ID           string    `json:"id" bson:"_id"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	JoinedAt     time.Time `json:"joinedAt" bson:"joined_at"`
}

// PublicUser is the part of a User that may cross the HTTP boundary.
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email}
}

type Task struct {
	ID          string    `json:"id" bson:"_id"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description" bson:"description"`
	Status      Status    `json:"status" bson:"status"`
	OwnerID     string    `json:"owner" bson:"owner_id"`
	CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
}

// TaskChanges carries the already validated fields of a partial update.
// Nil means "leave unchanged".
type TaskChanges struct {
	Title       *string
	Description *string
	Status      *Status
}

func (c TaskChanges) Empty() bool {
	return c.Title == nil && c.Description == nil && c.Status == nil
}

// Apply copies the non-nil fields onto t.
func (c TaskChanges) Apply(t *Task) {
	if c.Title != nil {
		t.Title = *c.Title
	}
	if c.Description != nil {
		t.Description = *c.Description
	}
	if c.Status != nil {
		t.Status = *c.Status
	}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateTaskRequest has no owner field: the owner is always the caller.
type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}
