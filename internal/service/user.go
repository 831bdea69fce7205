package service

import (
	"PanShare/internal/repo"
	"PanShare/model"
	"PanShare/utils"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"
)

type UserOptions struct {
	BaseURL            string
	ActivationRequired bool
	ActivationTTL      time.Duration
}

type RegisterInput struct {
	UserName string
	Password string
	Email    string
}

// UserService manages accounts. Passwords are always stored as bcrypt hashes.
type UserService struct {
	users       UserRepository
	activations ActivationStore
	mailer      Mailer
	tokens      TokenGenerator
	audit       AuditLog
	now         Clock
	opts        UserOptions
}

func NewUserService(users UserRepository, activations ActivationStore, mailer Mailer, tokens TokenGenerator, audit AuditLog, clock Clock, opts UserOptions) *UserService {
	if opts.ActivationTTL <= 0 {
		opts.ActivationTTL = 24 * time.Hour
	}
	if clock == nil {
		clock = SystemClock
	}
	return &UserService{users: users, activations: activations, mailer: mailer, tokens: tokens, audit: audit, now: clock, opts: opts}
}

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

func validateCredentials(name, password string) error {
	if l := len(name); l < 3 || l > 50 {
		return invalidArgf("user name must be 3 to 50 characters")
	}
	if len(password) < 6 {
		return invalidArgf("password must be at least 6 characters")
	}
	if len(password) > maxPasswordBytes {
		return invalidArgf("password must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}

// Register creates an account. With activation enabled the account starts
// inactive and an activation link is mailed.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	return s.create(ctx, in, model.RoleUser, !s.opts.ActivationRequired)
}

func (s *UserService) create(ctx context.Context, in RegisterInput, role string, active bool) (*model.User, error) {
	in.UserName = strings.TrimSpace(in.UserName)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateCredentials(in.UserName, in.Password); err != nil {
		return nil, err
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, invalidArgf("invalid email")
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		UserName: in.UserName,
		Password: hash,
		Email:    in.Email,
		Role:     role,
		IsActive: active,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: user name or email already taken", ErrConflict)
		}
		return nil, err
	}
	if !active {
		if err := s.sendActivation(ctx, user); err != nil {
			slog.Warn("send activation failed", "user_id", user.ID, "error", err)
		}
	}
	record(ctx, s.audit, s.now, Event{Name: EventUserRegister, ActorID: actor(user.ID), TargetType: "user", TargetID: user.ID})
	return user, nil
}

func (s *UserService) sendActivation(ctx context.Context, user *model.User) error {
	if s.activations == nil {
		return errors.New("activation store not configured")
	}
	token, err := s.tokens.Generate()
	if err != nil {
		return err
	}
	if err := s.activations.Save(ctx, token, user.ID, s.opts.ActivationTTL); err != nil {
		return err
	}
	if s.mailer == nil {
		return errors.New("mailer not configured")
	}
	link := s.opts.BaseURL + "/api/activate?token=" + url.QueryEscape(token)
	return s.mailer.SendActivation(ctx, user.Email, link)
}

// Activate consumes a one-time activation token.
func (s *UserService) Activate(ctx context.Context, token string) error {
	if s.activations == nil || token == "" {
		return ErrNotFound
	}
	userID, err := s.activations.Take(ctx, token)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return s.users.SetUserActive(ctx, userID, true)
}

// Authenticate checks credentials. Unknown users and wrong passwords both
// return ErrBadPassword; disabled accounts return ErrAccessDenied.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.users.GetUserByName(ctx, strings.TrimSpace(username))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrBadPassword
	}
	if err != nil {
		return nil, err
	}
	if !utils.CheckPwd(password, user.Password) {
		return nil, ErrBadPassword
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: account is not active", ErrAccessDenied)
	}
	record(ctx, s.audit, s.now, Event{Name: EventUserLogin, ActorID: actor(user.ID), TargetType: "user", TargetID: user.ID})
	return user, nil
}

func (s *UserService) Me(ctx context.Context, userID uint64) (*model.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	return user, err
}

// ChangePassword replaces the password after checking the old one.
func (s *UserService) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if !utils.CheckPwd(oldPassword, user.Password) {
		return ErrBadPassword
	}
	if err := validateCredentials(user.UserName, newPassword); err != nil {
		return err
	}
	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdateUserPassword(ctx, userID, hash); err != nil {
		return err
	}
	record(ctx, s.audit, s.now, Event{Name: EventUserPassword, ActorID: actor(userID), TargetType: "user", TargetID: userID})
	return nil
}
