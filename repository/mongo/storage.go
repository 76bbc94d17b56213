// Package mongostore stores users and tasks as MongoDB documents. Each document
// is the unit of atomicity: every owner-scoped operation is a single
// filtered find/update/delete on the (_id, owner_id) pair.
package mongostore

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"taskflow/internal/domain/errors"
	"taskflow/internal/domain/models"
	"taskflow/internal/logging"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection = "users"
	tasksCollection = "tasks"

	defaultTimeout = 15 * time.Second
)

type Storage struct {
	client  *mongo.Client
	users   *mongo.Collection
	tasks   *mongo.Collection
	timeout time.Duration
	log     logging.Logger
}

// NewStorage connects, pings and makes sure the unique email index and the
// owner index exist.
func NewStorage(ctx context.Context, uri, database string, timeout time.Duration, log logging.Logger) (*Storage, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri).SetTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Storage{
		client:  client,
		users:   db.Collection(usersCollection),
		tasks:   db.Collection(tasksCollection),
		timeout: timeout,
		log:     log,
	}
	if err := s.ensureIndexes(cctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	log.Info(ctx, "mongo connection established", "database", database)
	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_key"),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}

	_, err = s.tasks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("tasks_owner_created_idx"),
	})
	if err != nil {
		return fmt.Errorf("create tasks index: %w", err)
	}
	return nil
}

func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.ErrDuplicateEmail
		}
		s.log.Error(ctx, "create user failed", "error", err)
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Storage) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var user models.User
	if err := s.users.FindOne(ctx, filter).Decode(&user); err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.ErrNotFound
		}
		s.log.Error(ctx, "get user failed", "error", err)
		return nil, fmt.Errorf("get user: %w", err)
	}
	user.JoinedAt = user.JoinedAt.UTC()
	return &user, nil
}

func (s *Storage) DeleteUser(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		s.log.Error(ctx, "delete user failed", "user_id", id, "error", err)
		return false, fmt.Errorf("delete user: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// CreateTask inserts task if its owner still exists. A missing owner is
// ErrNotFound, matching the foreign key on the SQL side.
func (s *Storage) CreateTask(ctx context.Context, task *models.Task) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	owners, err := s.users.CountDocuments(ctx, bson.M{"_id": task.OwnerID}, options.Count().SetLimit(1))
	if err != nil {
		s.log.Error(ctx, "check task owner failed", "owner_id", task.OwnerID, "error", err)
		return fmt.Errorf("create task: %w", err)
	}
	if owners == 0 {
		return errors.ErrNotFound
	}

	if _, err := s.tasks.InsertOne(ctx, task); err != nil {
		s.log.Error(ctx, "create task failed", "error", err)
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *Storage) GetTasks(ctx context.Context, ownerID string) ([]models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.tasks.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		s.log.Error(ctx, "list tasks failed", "error", err)
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := []models.Task{}
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	for i := range tasks {
		tasks[i].CreatedAt = tasks[i].CreatedAt.UTC()
	}
	return tasks, nil
}

func (s *Storage) GetTaskByID(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.decodeTask(ctx, "get task", s.tasks.FindOne(ctx, ownedBy(ownerID, taskID)))
}

func (s *Storage) UpdateTask(ctx context.Context, ownerID, taskID string, changes models.TaskChanges) (*models.Task, error) {
	set := bson.M{}
	if changes.Title != nil {
		set["title"] = *changes.Title
	}
	if changes.Description != nil {
		set["description"] = *changes.Description
	}
	if changes.Status != nil {
		set["status"] = *changes.Status
	}
	if len(set) == 0 {
		return s.GetTaskByID(ctx, ownerID, taskID)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	res := s.tasks.FindOneAndUpdate(ctx, ownedBy(ownerID, taskID), bson.M{"$set": set}, opts)
	return s.decodeTask(ctx, "update task", res)
}

func (s *Storage) DeleteTask(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.decodeTask(ctx, "delete task", s.tasks.FindOneAndDelete(ctx, ownedBy(ownerID, taskID)))
}

func (s *Storage) DeleteTasksByOwner(ctx context.Context, ownerID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.tasks.DeleteMany(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		s.log.Error(ctx, "delete owner tasks failed", "owner_id", ownerID, "error", err)
		return 0, fmt.Errorf("delete owner tasks: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Storage) decodeTask(ctx context.Context, op string, res *mongo.SingleResult) (*models.Task, error) {
	var task models.Task
	if err := res.Decode(&task); err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.ErrNotFound
		}
		s.log.Error(ctx, op+" failed", "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	task.CreatedAt = task.CreatedAt.UTC()
	return &task, nil
}

func ownedBy(ownerID, taskID string) bson.M {
	return bson.M{"_id": taskID, "owner_id": ownerID}
}
