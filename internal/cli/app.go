package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"shared-planner/internal/clock"
	"shared-planner/internal/config"
	"shared-planner/internal/logger"
	"shared-planner/internal/model"
	"shared-planner/internal/repository"
	"shared-planner/internal/service"
	"shared-planner/internal/store"
)

// readyTimeout bounds the first load of the aggregated view.
const readyTimeout = 10 * time.Second

// app holds what a command needs: configuration, the database and the
// services built over it.
type app struct {
	cfg       config.Config
	log       zerolog.Logger
	loc       *time.Location
	db        *gorm.DB
	store     *repository.Store
	clock     clock.Clock
	services  *service.Services
	reminders *service.ReminderService
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.Env, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDB(cfg.DB.Driver, cfg.DB.URL, log)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	st := repository.NewStore(db, log)
	clk := clock.Real(loc)

	return &app{
		cfg:       cfg,
		log:       log,
		loc:       loc,
		db:        db,
		store:     st,
		clock:     clk,
		services:  service.NewServices(st, clk, loc, cfg.MaxRecurrence, log),
		reminders: service.NewReminderService(st, st, cfg.DisplayWindowDays),
	}, nil
}

func (a *app) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close database")
		}
	}()
	return fn(cmd.Context(), a)
}

// lookupUser resolves a user by identifier, then by display name.
func (a *app) lookupUser(ctx context.Context, ref string) (*model.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("no user selected, pass --user or set PLANNER_USER")
	}
	user, err := a.services.Users.Get(ctx, ref)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	users, err := a.services.Users.List(ctx)
	if err != nil {
		return nil, err
	}
	var found *model.User
	for i := range users {
		if !strings.EqualFold(users[i].DisplayName, ref) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("user name %q is ambiguous, use the ID", ref)
		}
		found = &users[i]
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", service.ErrUserNotFound, ref)
	}
	return found, nil
}

// session signs in the user named by --user.
func (a *app) session(ctx context.Context) (*service.Session, error) {
	user, err := a.lookupUser(ctx, userRef)
	if err != nil {
		return nil, err
	}
	return service.NewSession(*user), nil
}

// planner signs in and waits for the first aggregated view. The caller
// closes the planner.
func (a *app) planner(ctx context.Context) (*service.Planner, error) {
	session, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	p, err := service.NewPlanner(session, a.store, a.services, a.clock, a.cfg.DisplayWindowDays, a.log)
	if err != nil {
		return nil, err
	}
	if err := p.Start(ctx); err != nil {
		p.Close()
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := p.WaitReady(waitCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	return p, nil
}

// groupNames maps the identifiers of the user's groups to their names.
func (a *app) groupNames(ctx context.Context, session *service.Session) map[string]string {
	names := map[string]string{}
	groups, err := a.services.Groups.List(ctx, session)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to list groups")
		return names
	}
	for _, group := range groups {
		names[group.ID] = group.Name
	}
	return names
}
