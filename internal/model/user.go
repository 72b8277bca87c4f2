package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User stores profile data. TelegramID is set for users who came through the
// bot and nil for users created from the CLI.
type User struct {
	ID          string       `gorm:"primaryKey;size:36"`
	TelegramID  *int64       `gorm:"uniqueIndex"`
	DisplayName string       `gorm:"size:128"`
	Username    string       `gorm:"size:64"`
	Friends     []Friendship `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Friendship is a directed friend link.
type Friendship struct {
	UserID    string `gorm:"primaryKey;size:36"`
	FriendID  string `gorm:"primaryKey;size:36"`
	CreatedAt time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// FriendIDs returns the identifiers of the user's friends.
func (u User) FriendIDs() []string {
	ids := make([]string, 0, len(u.Friends))
	for _, f := range u.Friends {
		ids = append(ids, f.FriendID)
	}
	return ids
}
