package db

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"taskflow/internal/domain/errors"
	"taskflow/internal/domain/models"
	"taskflow/internal/logging"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	defaultTimeout = 15 * time.Second
)

const (
	qCreateUser     = `INSERT INTO users (id, email, password_hash, joined_at) VALUES ($1, $2, $3, $4)`
	qGetUserByID    = `SELECT id, email, password_hash, joined_at FROM users WHERE id = $1`
	qGetUserByEmail = `SELECT id, email, password_hash, joined_at FROM users WHERE email = $1`
	qDeleteUser     = `DELETE FROM users WHERE id = $1`

	taskColumns = `id, title, description, status, owner_id, created_at`

	qCreateTask  = `INSERT INTO tasks (id, title, description, status, owner_id, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	qGetTasks    = `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`
	qGetTaskByID = `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND owner_id = $2`
	qUpdateTask  = `UPDATE tasks SET
		title = COALESCE($3, title),
		description = COALESCE($4, description),
		status = COALESCE($5, status)
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + taskColumns
	qDeleteTask         = `DELETE FROM tasks WHERE id = $1 AND owner_id = $2 RETURNING ` + taskColumns
	qDeleteTasksByOwner = `DELETE FROM tasks WHERE owner_id = $1`
)

// Storage is the PostgreSQL store. The pool is safe for concurrent use, so
// one Storage serves every request.
type Storage struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	log     logging.Logger
}

func NewStorage(ctx context.Context, connStr string, timeout time.Duration, log logging.Logger) (*Storage, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.New(cctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.Info(ctx, "postgres connection established")
	return &Storage{pool: pool, timeout: timeout, log: log}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, qCreateUser, user.ID, user.Email, user.PasswordHash, user.JoinedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return errors.ErrDuplicateEmail
		}
		s.log.Error(ctx, "create user failed", "error", err)
		return fmt.Errorf("create user: %w", err)
	}
	s.log.Debug(ctx, "user created", "user_id", user.ID)
	return nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, qGetUserByID, id)
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, qGetUserByEmail, email)
}

func (s *Storage) getUser(ctx context.Context, query string, arg string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user := &models.User{}
	err := s.pool.QueryRow(ctx, query, arg).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.JoinedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		s.log.Error(ctx, "get user failed", "error", err)
		return nil, fmt.Errorf("get user: %w", err)
	}
	user.JoinedAt = user.JoinedAt.UTC()
	return user, nil
}

func (s *Storage) DeleteUser(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ct, err := s.pool.Exec(ctx, qDeleteUser, id)
	if err != nil {
		s.log.Error(ctx, "delete user failed", "user_id", id, "error", err)
		return false, fmt.Errorf("delete user: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Storage) CreateTask(ctx context.Context, task *models.Task) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, qCreateTask,
		task.ID, task.Title, task.Description, string(task.Status), task.OwnerID, task.CreatedAt)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return errors.ErrNotFound
		}
		s.log.Error(ctx, "create task failed", "error", err)
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *Storage) GetTasks(ctx context.Context, ownerID string) ([]models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, qGetTasks, ownerID)
	if err != nil {
		s.log.Error(ctx, "list tasks failed", "error", err)
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *Storage) GetTaskByID(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.oneTask(ctx, "get task", qGetTaskByID, taskID, ownerID)
}

func (s *Storage) UpdateTask(ctx context.Context, ownerID, taskID string, changes models.TaskChanges) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var status *string
	if changes.Status != nil {
		v := string(*changes.Status)
		status = &v
	}
	return s.oneTask(ctx, "update task", qUpdateTask, taskID, ownerID, changes.Title, changes.Description, status)
}

func (s *Storage) DeleteTask(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.oneTask(ctx, "delete task", qDeleteTask, taskID, ownerID)
}

func (s *Storage) DeleteTasksByOwner(ctx context.Context, ownerID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ct, err := s.pool.Exec(ctx, qDeleteTasksByOwner, ownerID)
	if err != nil {
		s.log.Error(ctx, "delete owner tasks failed", "owner_id", ownerID, "error", err)
		return 0, fmt.Errorf("delete owner tasks: %w", err)
	}
	return ct.RowsAffected(), nil
}

// oneTask runs a statement that yields at most one task row.
func (s *Storage) oneTask(ctx context.Context, op, query string, args ...any) (*models.Task, error) {
	task, err := scanTask(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		s.log.Error(ctx, op+" failed", "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return task, nil
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var (
		task   models.Task
		status string
	)
	if err := row.Scan(&task.ID, &task.Title, &task.Description, &status, &task.OwnerID, &task.CreatedAt); err != nil {
		return nil, err
	}
	task.Status = models.Status(status)
	task.CreatedAt = task.CreatedAt.UTC()
	return &task, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
