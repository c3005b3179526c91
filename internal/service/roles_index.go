package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hirewire/portal/internal/clientno"
	"github.com/hirewire/portal/internal/models"
	"gorm.io/gorm"
)

// RoleIndexService answers questions about the cross-service roles index.
type RoleIndexService struct {
	db *gorm.DB
}

// NewRoleIndexService creates a new RoleIndexService.
func NewRoleIndexService(db *gorm.DB) *RoleIndexService {
	return &RoleIndexService{db: db}
}

// List returns index rows matching filter, ordered by service tag and client number.
func (s *RoleIndexService) List(ctx context.Context, filter RoleFilter) ([]models.RoleIndex, error) {
	query := s.db.WithContext(ctx)
	if filter.ServiceTag != nil {
		query = query.Where("service_tag = ?", *filter.ServiceTag)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if !filter.IncludeDeleted {
		query = query.Where("is_deleted = ?", false)
	}

	rows := []models.RoleIndex{}
	if err := query.Order("service_tag ASC, client_no ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ClientNo returns the client's number for tag, or nil if the client has no
// live role in that line.
func (s *RoleIndexService) ClientNo(ctx context.Context, clientID uuid.UUID, tag int) (*int, error) {
	n, err := clientno.New(s.db).ClientNoFor(ctx, clientID, tag)
	if err != nil {
		return nil, translateAllocError(err)
	}
	return n, nil
}

// NextClientNo returns the number a new client of tag would receive now.
func (s *RoleIndexService) NextClientNo(ctx context.Context, tag int) (int, error) {
	n, err := clientno.New(s.db).NextAvailable(ctx, tag)
	if err != nil {
		return 0, translateAllocError(err)
	}
	return n, nil
}

func translateAllocError(err error) error {
	switch {
	case errors.Is(err, clientno.ErrInvalidServiceTag):
		return &ValidationError{Message: err.Error()}
	case errors.Is(err, clientno.ErrRangeExhausted):
		return &ConflictError{Message: err.Error()}
	}
	return fmt.Errorf("client number lookup: %w", err)
}
