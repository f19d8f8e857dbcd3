package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freedomain/internal/models"
	"freedomain/internal/store"

	"golang.org/x/crypto/bcrypt"
)

// UserService owns accounts and their status
type UserService struct {
	store   *store.Collections
	admin   Admin
	monitor  *SecurityMonitor
	now      func() time.Time
	hashCost int
}

// NewUserService creates a new user directory
func NewUserService(collections *store.Collections, admin Admin, monitor *SecurityMonitor) *UserService {
	return &UserService{
		store:    collections,
		admin:    admin,
		monitor:  monitor,
		now:      time.Now,
		hashCost: bcrypt.DefaultCost,
	}
}

// Register creates an active account. Usernames match case-sensitively.
func (s *UserService) Register(ctx context.Context, username, email, password string) error {
	if len(username) < 3 || password == "" {
		return ErrInvalidInput
	}
	if s.admin.Is(username) {
		return ErrUsernameTaken
	}

	users, err := s.store.Users(ctx)
	if err != nil {
		return upstream("load users", err)
	}

	if findUser(users, username) >= 0 {
		return ErrUsernameTaken
	}

	hashed, err := s.hashPassword(password)
	if err != nil {
		return err
	}

	users = append(users, models.User{
		Username:  username,
		Email:     email,
		Password:  hashed,
		Status:    models.UserActive,
		CreatedAt: s.now(),
	})
	if err := s.store.SaveUsers(ctx, users); err != nil {
		return upstream("save users", err)
	}

	s.monitor.OnAction(ctx, username, ActionRegister, "New user registered")
	return nil
}

// Login checks credentials. The admin pair is matched before the directory
// is consulted. Account status is checked only after the password matches.
func (s *UserService) Login(ctx context.Context, username, password string) (*Identity, error) {
	if s.admin.Matches(username, password) {
		return &Identity{Username: s.admin.Username, Email: s.admin.Email, IsAdmin: true}, nil
	}

	users, err := s.store.Users(ctx)
	if err != nil {
		return nil, upstream("load users", err)
	}

	i := findUser(users, username)
	if i < 0 || !checkPassword(users[i].Password, password) {
		s.monitor.OnAction(ctx, username, ActionLoginFailed, "Login failed")
		return nil, ErrInvalidCredentials
	}

	user := users[i]
	if user.Status == models.UserSuspended || user.Status == models.UserBlacklisted {
		return nil, ErrAccountSuspended
	}

	s.monitor.OnAction(ctx, username, ActionLogin, "Login succeeded")
	return &Identity{Username: user.Username, Email: user.Email}, nil
}

// IsEligible reports whether username may request domains. The admin is
// always eligible.
func (s *UserService) IsEligible(ctx context.Context, username string) (bool, error) {
	if s.admin.Is(username) {
		return true, nil
	}

	users, err := s.store.Users(ctx)
	if err != nil {
		return false, upstream("load users", err)
	}

	i := findUser(users, username)
	return i >= 0 && users[i].Status == models.UserActive, nil
}

// SetStatus overwrites a user's status. Any status can move to any other;
// an unknown target is a silent no-op.
func (s *UserService) SetStatus(ctx context.Context, adminUsername, targetUsername string, status models.UserStatus) error {
	if err := s.admin.require(adminUsername); err != nil {
		return err
	}
	if !status.Valid() {
		return ErrInvalidStatus
	}

	users, err := s.store.Users(ctx)
	if err != nil {
		return upstream("load users", err)
	}

	i := findUser(users, targetUsername)
	if i < 0 {
		return nil
	}

	users[i].Status = status
	if err := s.store.SaveUsers(ctx, users); err != nil {
		return upstream("save users", err)
	}

	s.monitor.OnAction(ctx, adminUsername, statusAction(status),
		fmt.Sprintf("User %s set to %s", targetUsername, status))
	return nil
}

// List returns every account except the admin, without passwords
func (s *UserService) List(ctx context.Context, adminUsername string) ([]models.PublicUser, error) {
	if err := s.admin.require(adminUsername); err != nil {
		return nil, err
	}

	users, err := s.store.Users(ctx)
	if err != nil {
		return nil, upstream("load users", err)
	}

	list := make([]models.PublicUser, 0, len(users))
	for _, u := range users {
		if s.admin.Is(u.Username) {
			continue
		}
		list = append(list, u.Public())
	}
	return list, nil
}

// hashPassword hashes a password using bcrypt
func (s *UserService) hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrPasswordTooLong
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// checkPassword compares a stored hash with a plain password
func checkPassword(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}

func findUser(users []models.User, username string) int {
	for i, u := range users {
		if u.Username == username {
			return i
		}
	}
	return -1
}

func statusAction(status models.UserStatus) string {
	switch status {
	case models.UserSuspended:
		return ActionUserSuspend
	case models.UserBlacklisted:
		return ActionUserBlacklist
	default:
		return ActionUserUnsuspend
	}
}
