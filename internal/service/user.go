package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/hirewire/portal/internal/audit"
	"github.com/hirewire/portal/internal/models"
	"github.com/hirewire/portal/internal/rbac"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

// UserService manages client accounts.
type UserService struct {
	db *gorm.DB
}

// NewUserService creates a new UserService.
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// Create adds a client account and optionally grants it admin.
func (s *UserService) Create(ctx context.Context, actorID uuid.UUID, req CreateUserRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, &ValidationError{Message: "username is required"}
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, &ValidationError{Message: "a valid email is required"}
	}
	if len(req.Password) < minPasswordLength {
		return nil, &ValidationError{Message: fmt.Sprintf("password must be at least %d characters", minPasswordLength)}
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ? OR email = ?", username, req.Email).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, &ConflictError{Message: "username or email already in use"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Username:     username,
		Email:        req.Email,
		PasswordHash: string(hash),
		CompanyName:  strings.TrimSpace(req.CompanyName),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if req.IsAdmin {
		if err := rbac.MakeAdmin(user.ID); err != nil {
			return nil, fmt.Errorf("grant admin: %w", err)
		}
	}

	audit.LogAction(s.db.WithContext(ctx), actorID, audit.ActionCreateUser, fmt.Sprintf("user:%s", user.ID), map[string]interface{}{
		"username": user.Username,
		"is_admin": req.IsAdmin,
	})
	return &user, nil
}

// List returns every account, flagging the admins.
func (s *UserService) List(ctx context.Context) ([]UserView, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	admins, err := rbac.GetAllAdminUserIDs()
	if err != nil {
		return nil, fmt.Errorf("load admins: %w", err)
	}

	views := make([]UserView, len(users))
	for i, u := range users {
		views[i] = UserView{User: u, IsAdmin: admins[u.ID]}
	}
	return views, nil
}

// SetAdmin grants or revokes admin privileges. Admins cannot revoke their own.
func (s *UserService) SetAdmin(ctx context.Context, actorID, userID uuid.UUID, admin bool) (*UserView, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !admin && userID == actorID {
		return nil, &ConflictError{Message: "admins cannot revoke their own privileges"}
	}

	action := audit.ActionGrantAdmin
	if admin {
		if err := rbac.MakeAdmin(userID); err != nil {
			return nil, fmt.Errorf("grant admin: %w", err)
		}
	} else {
		if err := rbac.RevokeAdmin(userID); err != nil {
			return nil, fmt.Errorf("revoke admin: %w", err)
		}
		action = audit.ActionRevokeAdmin
	}

	audit.LogAction(s.db.WithContext(ctx), actorID, action, fmt.Sprintf("user:%s", userID), nil)
	return &UserView{User: user, IsAdmin: admin}, nil
}
