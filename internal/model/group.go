package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Group is a named set of users sharing group tasks. The owner is always a
// member.
type Group struct {
	ID        string        `gorm:"primaryKey;size:36"`
	Name      string        `gorm:"size:128;uniqueIndex"`
	OwnerID   string        `gorm:"size:36;index"`
	Members   []GroupMember `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GroupMember links a user to a group.
type GroupMember struct {
	GroupID   string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"primaryKey;size:36;index"`
	CreatedAt time.Time
}

func (g *Group) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

// MemberIDs returns the member identifiers in stored order.
func (g Group) MemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

// HasMember reports whether userID belongs to the group.
func (g Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// TableName avoids GROUPS, which is a keyword in SQLite window clauses.
func (Group) TableName() string {
	return "planner_groups"
}
