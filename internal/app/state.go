// Package app is the credential core: account creation and sign in over a
// user repository and a password hasher.
package app

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teammeng/foscion/internal/apperr"
	"github.com/teammeng/foscion/internal/config"
	"github.com/teammeng/foscion/internal/domain/user"
)

type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (user.User, bool, error)
	Create(ctx context.Context, username, email, passwordHash string) (user.User, error)
}

type PasswordHasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Verify(ctx context.Context, plain, encoded string) (bool, error)
}

// Metrics receives one result per operation: "ok" or the error kind.
type Metrics interface {
	ObserveAuth(op, result string)
}

// State is built once at startup and shared by every request. Nothing in it
// changes after New returns; the repository's pool manages its own
// connections.
type State struct {
	cfg     config.Config
	users   UserRepository
	hasher  PasswordHasher
	log     *slog.Logger
	metrics Metrics
	tracer  trace.Tracer
}

type Option func(*State)

func WithLogger(log *slog.Logger) Option {
	return func(s *State) {
		s.log = log
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *State) {
		s.metrics = m
	}
}

func New(cfg config.Config, users UserRepository, hasher PasswordHasher, opts ...Option) *State {
	s := &State{
		cfg:    cfg,
		users:  users,
		hasher: hasher,
		log:    slog.Default(),
		tracer: otel.Tracer("github.com/teammeng/foscion/internal/app"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *State) Config() config.Config {
	return s.cfg
}

// CreateUser registers a new account.
//
// The email pre-check and the insert are not atomic: two concurrent sign ups
// for one email can both pass the lookup. The storage unique constraint on
// email decides the race and the loser gets the same "user already exists"
// error as the common case.
func (s *State) CreateUser(ctx context.Context, input user.CreateUser) (u user.User, err error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateUser")
	defer func() { s.finish(ctx, span, "signup", err) }()

	_, exists, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		return user.User{}, err
	}
	if exists {
		return user.User{}, apperr.Business(user.ErrUserExists)
	}

	hash, err := s.hasher.Hash(ctx, input.Password)
	if err != nil {
		return user.User{}, classifyHashErr(err)
	}

	u, err = s.users.Create(ctx, input.Username, input.Email, hash)
	if err != nil {
		return user.User{}, err
	}

	span.SetAttributes(attribute.Int64("user.id", u.ID))
	s.log.InfoContext(ctx, "user created", "user_id", u.ID)

	return u, nil
}

// Signin returns the account for email when password verifies against its
// stored hash.
func (s *State) Signin(ctx context.Context, input user.SigninUser) (u user.User, err error) {
	ctx, span := s.tracer.Start(ctx, "app.Signin")
	defer func() { s.finish(ctx, span, "signin", err) }()

	found, ok, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		return user.User{}, err
	}
	if !ok {
		return user.User{}, apperr.Business(user.ErrUserNotFound)
	}

	valid, err := s.hasher.Verify(ctx, input.Password, found.PasswordHash)
	if err != nil {
		return user.User{}, classifyHashErr(err)
	}
	if !valid {
		return user.User{}, apperr.Business(user.ErrIncorrectPassword)
	}

	span.SetAttributes(attribute.Int64("user.id", found.ID))
	s.log.InfoContext(ctx, "user signed in", "user_id", found.ID)

	return found, nil
}

// classifyHashErr reports waiting for a hashing slot past the caller's
// deadline as a server side resource fault; everything else from the hasher
// is a crypto fault.
func classifyHashErr(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.IO(err)
	}
	return apperr.Crypto(err)
}

func (s *State) finish(ctx context.Context, span trace.Span, op string, err error) {
	defer span.End()

	result := "ok"
	if err != nil {
		kind := apperr.KindOf(err)
		result = kind.String()
		span.SetStatus(codes.Error, kind.String())
		if kind.ServerFault() {
			span.RecordError(err)
			s.log.ErrorContext(ctx, op+" failed", "kind", kind.String(), "err", err)
		} else {
			s.log.DebugContext(ctx, op+" rejected", "kind", kind.String(), "reason", err.Error())
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveAuth(op, result)
	}
}
