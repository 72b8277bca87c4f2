package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"shared-planner/internal/model"
	"shared-planner/internal/store"
)

// UserService manages user documents and friendships.
type UserService struct {
	users  store.UserStore
	logger zerolog.Logger
}

func NewUserService(users store.UserStore, logger zerolog.Logger) *UserService {
	return &UserService{
		users:  users,
		logger: logger.With().Str("service", "users").Logger(),
	}
}

// EnsureTelegramUser returns the user bound to a Telegram account and
// creates it on first contact. Existing display names are kept.
func (s *UserService) EnsureTelegramUser(ctx context.Context, telegramID int64, firstName, lastName, username string) (*model.User, error) {
	user, err := s.users.FindUserByTelegramID(ctx, telegramID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	name := strings.TrimSpace(strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName))
	if name == "" {
		name = username
	}
	if name == "" {
		name = UnknownUserName
	}
	user = &model.User{TelegramID: &telegramID, DisplayName: name, Username: username}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return s.users.FindUserByTelegramID(ctx, telegramID)
		}
		return nil, err
	}
	s.logger.Info().
		Str("user_id", user.ID).
		Int64("telegram_id", telegramID).
		Msg("registered user")
	return user, nil
}

// Create registers a user without a Telegram account.
func (s *UserService) Create(ctx context.Context, displayName string) (*model.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, invalid("display name", "must not be empty")
	}
	user := &model.User{DisplayName: displayName}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("user_id", user.ID).
		Msg("registered user")
	return user, nil
}

func (s *UserService) Get(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound, userID)
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	return s.users.ListUsers(ctx)
}

// Rename changes the signed-in user's display name.
func (s *UserService) Rename(ctx context.Context, session *Session, name string) error {
	userID, err := session.UserID()
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("display name", "must not be empty")
	}
	if err := s.users.UpdateDisplayName(ctx, userID, name); err != nil {
		return notFound(err, ErrUserNotFound, userID)
	}
	s.logger.Info().
		Str("user_id", userID).
		Msg("renamed user")
	return nil
}

// AddFriend records friendID as a friend of the signed-in user.
func (s *UserService) AddFriend(ctx context.Context, session *Session, friendID string) error {
	userID, err := session.UserID()
	if err != nil {
		return err
	}
	if friendID == userID {
		return invalid("friend", "cannot befriend yourself")
	}
	if err := s.users.AddFriend(ctx, userID, friendID); err != nil {
		return notFound(err, ErrUserNotFound, friendID)
	}
	return nil
}

// Candidates lists users that can be added to a group: everyone except the
// signed-in user, optionally limited to friends, whose display name contains
// search (case-insensitive).
func (s *UserService) Candidates(ctx context.Context, session *Session, search string, friendsOnly bool) ([]model.User, error) {
	me, err := session.User()
	if err != nil {
		return nil, err
	}
	self, err := s.users.GetUser(ctx, me.ID)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound, me.ID)
	}
	friends := self.FriendIDs()

	all, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]model.User, 0, len(all))
	for _, user := range all {
		if user.ID == self.ID {
			continue
		}
		if friendsOnly && !slices.Contains(friends, user.ID) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(user.DisplayName), search) {
			continue
		}
		out = append(out, user)
	}
	return out, nil
}
