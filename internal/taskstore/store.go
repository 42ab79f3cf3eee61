package taskstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	dbmodel "github.com/takecian/vibe-flow/internal/db"
	"github.com/takecian/vibe-flow/internal/task"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("task not found")
	ErrTitleRequired = errors.New("title is required")
	ErrInvalidStatus = errors.New("invalid task status")
)

type CreateInput struct {
	Title       string
	Description string
	Status      string
}

// UpdateInput holds optional changes; nil fields are left as stored. The branch name is
// fixed at creation and cannot be updated.
type UpdateInput struct {
	Title       *string
	Description *string
	Status      *string
}

type Store struct {
	db    *gorm.DB
	now   func() time.Time
	newID func() string
}

// NewStore uses the shared DB. Caller owns the db lifetime.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &Store{db: db, now: time.Now, newID: uuid.NewString}, nil
}

func (s *Store) Create(ctx context.Context, in CreateInput) (task.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return task.Task{}, ErrTitleRequired
	}
	status := task.StatusTodo
	if strings.TrimSpace(in.Status) != "" {
		parsed, ok := task.ParseStatus(in.Status)
		if !ok {
			return task.Task{}, fmt.Errorf("%w: %s", ErrInvalidStatus, in.Status)
		}
		status = parsed
	}
	now := s.now()
	id := s.newID()
	row := dbmodel.Task{
		ID:          id,
		Title:       title,
		Description: in.Description,
		Status:      string(status),
		BranchName:  task.DefaultBranchName(now, id),
		CreatedAt:   now.UnixMilli(),
		UpdatedAt:   now.UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return task.Task{}, err
	}
	return fromRow(row), nil
}

// Get returns the task with id; ok is false when no such task exists.
func (s *Store) Get(ctx context.Context, id string) (task.Task, bool, error) {
	var row dbmodel.Task
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return task.Task{}, false, nil
	}
	if err != nil {
		return task.Task{}, false, err
	}
	return fromRow(row), true, nil
}

func (s *Store) List(ctx context.Context) ([]task.Task, error) {
	rows := make([]dbmodel.Task, 0)
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]task.Task, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id string, in UpdateInput) (task.Task, error) {
	updates := map[string]any{}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return task.Task{}, ErrTitleRequired
		}
		updates["title"] = title
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Status != nil {
		status, ok := task.ParseStatus(*in.Status)
		if !ok {
			return task.Task{}, fmt.Errorf("%w: %s", ErrInvalidStatus, *in.Status)
		}
		updates["status"] = string(status)
	}
	updates["updated_at"] = s.now().UnixMilli()

	res := s.db.WithContext(ctx).Model(&dbmodel.Task{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return task.Task{}, res.Error
	}
	if res.RowsAffected == 0 {
		return task.Task{}, ErrNotFound
	}
	t, _, err := s.Get(ctx, id)
	return t, err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&dbmodel.Task{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLaunchStatus records the outcome of the assistant launch for a task.
func (s *Store) SetLaunchStatus(ctx context.Context, id string, status task.LaunchStatus, message string) error {
	updates := map[string]any{
		"launch_status": string(status),
		"launch_error":  message,
	}
	if status == task.LaunchLaunched {
		updates["launched_at"] = s.now().UnixMilli()
	}
	res := s.db.WithContext(ctx).Model(&dbmodel.Task{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func fromRow(row dbmodel.Task) task.Task {
	return task.Task{
		ID:           row.ID,
		Title:        row.Title,
		Description:  row.Description,
		Status:       task.Status(row.Status),
		BranchName:   row.BranchName,
		CreatedAt:    time.UnixMilli(row.CreatedAt).UTC(),
		UpdatedAt:    time.UnixMilli(row.UpdatedAt).UTC(),
		LaunchStatus: task.LaunchStatus(row.LaunchStatus),
		LaunchError:  row.LaunchError,
	}
}
