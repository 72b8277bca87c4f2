package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shared-planner/internal/model"
	"shared-planner/internal/store"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db  *gorm.DB
	hub *Hub
}

func NewUserRepository(db *gorm.DB, hub *Hub) *UserRepository {
	return &UserRepository{db: db, hub: hub}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("user: %w", store.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	r.hub.Notify(store.CollectionUsers)
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Preload("Friends").Where("id = ?", id).First(&user).Error
	switch {
	case err == nil:
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Preload("Friends").Where("telegram_id = ?", telegramID).First(&user).Error
	switch {
	case err == nil:
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("telegram user %d: %w", telegramID, store.ErrNotFound)
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) UpdateDisplayName(ctx context.Context, id, name string) error {
	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("display_name", name)
	if result.Error != nil {
		return fmt.Errorf("update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	r.hub.Notify(store.CollectionUsers)
	return nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Preload("Friends").Order("display_name ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// AddFriend records friendID as a friend of userID. Adding an existing friend
// is a no-op.
func (r *UserRepository) AddFriend(ctx context.Context, userID, friendID string) error {
	if _, err := r.GetByID(ctx, friendID); err != nil {
		return err
	}
	link := model.Friendship{UserID: userID, FriendID: friendID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
		return fmt.Errorf("add friend: %w", err)
	}
	r.hub.Notify(store.CollectionUsers)
	return nil
}
