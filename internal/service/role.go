package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hirewire/portal/internal/audit"
	"github.com/hirewire/portal/internal/clientno"
	"github.com/hirewire/portal/internal/credit"
	"github.com/hirewire/portal/internal/lock"
	"github.com/hirewire/portal/internal/models"
	"github.com/hirewire/portal/internal/servicetag"
	"github.com/hirewire/portal/internal/storage"
	"gorm.io/gorm"
)

const maxTitleLength = 200

// RoleService contains the business logic for service-line roles and keeps
// each role's roles index row in step with it.
type RoleService struct {
	db            *gorm.DB
	locker        lock.Locker
	store         storage.Store
	maxAttachment int64
}

// NewRoleService creates a RoleService. store may be nil when attachments are
// not accepted.
func NewRoleService(db *gorm.DB, locker lock.Locker, store storage.Store, maxAttachment int64) *RoleService {
	return &RoleService{db: db, locker: locker, store: store, maxAttachment: maxAttachment}
}

// Create spends one credit, resolves the client's number for the line and
// inserts the role with its index row. Everything happens in one transaction
// under the line's allocation lock, so a failure at any step leaves the
// credit and both tables untouched.
func (s *RoleService) Create(ctx context.Context, line *servicetag.Line, clientID uuid.UUID, req CreateRoleRequest, att *Attachment) (*RoleView, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, &ValidationError{Message: "title is required"}
	}
	if len(title) > maxTitleLength {
		return nil, &ValidationError{Message: fmt.Sprintf("title must be at most %d characters", maxTitleLength)}
	}
	attrs, err := line.SanitizeAttributes(req.Attributes)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	var attachmentKey string
	if att != nil {
		if s.store == nil {
			return nil, &ValidationError{Message: "attachments are not accepted"}
		}
		if err := storage.ValidatePDF(att.Data, s.maxAttachment); err != nil {
			return nil, &ValidationError{Message: err.Error()}
		}
		attachmentKey = storage.NewKey(line.Key)
		if err := s.store.Put(ctx, attachmentKey, bytes.NewReader(att.Data), int64(len(att.Data)), "application/pdf"); err != nil {
			return nil, fmt.Errorf("store attachment: %w", err)
		}
	}

	view, err := s.createLocked(ctx, line, clientID, title, strings.TrimSpace(req.Location), attrs, attachmentKey)
	if err != nil {
		if attachmentKey != "" {
			if derr := s.store.Delete(context.WithoutCancel(ctx), attachmentKey); derr != nil {
				slog.Warn("Failed to remove attachment of failed role", "key", attachmentKey, "error", derr)
			}
		}
		return nil, err
	}
	return view, nil
}

func (s *RoleService) createLocked(ctx context.Context, line *servicetag.Line, clientID uuid.UUID, title, location string, attrs map[string]interface{}, attachmentKey string) (*RoleView, error) {
	unlock, err := s.locker.Lock(ctx, clientno.LockKey(line.Tag))
	if err != nil {
		return nil, fmt.Errorf("acquire client number lock: %w", err)
	}
	defer unlock()

	var view *RoleView
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := credit.NewAllocator(credit.NewGormLedger(tx)).
			CheckAndDeductCredit(ctx, clientID, line.CreditServiceType(attrs), title)
		if !res.Success {
			return res.Err()
		}

		n, allocated, err := clientno.New(tx).Resolve(ctx, clientID, line.Tag)
		if err != nil {
			return err
		}
		if err := clientno.ValidateRange(line.Tag, n); err != nil {
			return err
		}

		role := models.ServiceRole{
			ServiceTag:    line.Tag,
			ClientID:      clientID,
			Title:         title,
			Location:      location,
			Status:        models.RoleStatusActive,
			Attributes:    attrs,
			AttachmentKey: attachmentKey,
		}
		if err := tx.Create(&role).Error; err != nil {
			return fmt.Errorf("create role: %w", err)
		}

		mirror := models.RoleIndex{
			Name:          line.DisplayName(),
			ClientNo:      n,
			ServiceTag:    line.Tag,
			ClientID:      clientID,
			ServiceRoleID: role.ID,
		}
		if err := tx.Create(&mirror).Error; err != nil {
			return fmt.Errorf("create roles index row: %w", err)
		}

		audit.LogAction(tx, clientID, audit.ActionCreateRole, roleResource(line, role.ID), map[string]interface{}{
			"title":             title,
			"client_no":         n,
			"client_no_new":     allocated,
			"remaining_credits": res.RemainingCredits,
		})

		view = &RoleView{ServiceRole: role, ServiceName: line.DisplayName(), ClientNo: &n, RemainingCredits: res.RemainingCredits}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Role created", "service", line.Key, "role_id", view.ID, "client_id", clientID, "client_no", *view.ClientNo)
	return view, nil
}

// List returns the line's roles, newest first.
func (s *RoleService) List(ctx context.Context, line *servicetag.Line, filter ListFilter) ([]RoleView, error) {
	query := s.db.WithContext(ctx).Where("service_tag = ?", line.Tag)
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if !filter.IncludeDeleted {
		query = query.Where("is_deleted = ?", false)
	}
	return s.find(ctx, line, query)
}

// ListDeleted returns the line's soft-deleted roles.
func (s *RoleService) ListDeleted(ctx context.Context, line *servicetag.Line, clientID *uuid.UUID) ([]RoleView, error) {
	query := s.db.WithContext(ctx).Where("service_tag = ? AND is_deleted = ?", line.Tag, true)
	if clientID != nil {
		query = query.Where("client_id = ?", *clientID)
	}
	return s.find(ctx, line, query)
}

func (s *RoleService) find(ctx context.Context, line *servicetag.Line, query *gorm.DB) ([]RoleView, error) {
	var roles []models.ServiceRole
	if err := query.Order("created_at DESC, id DESC").Find(&roles).Error; err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return []RoleView{}, nil
	}

	ids := make([]uint, len(roles))
	for i, r := range roles {
		ids[i] = r.ID
	}
	var mirrors []models.RoleIndex
	if err := s.db.WithContext(ctx).Where("service_role_id IN ?", ids).Find(&mirrors).Error; err != nil {
		return nil, err
	}
	numbers := make(map[uint]int, len(mirrors))
	for _, m := range mirrors {
		numbers[m.ServiceRoleID] = m.ClientNo
	}

	views := make([]RoleView, len(roles))
	for i, r := range roles {
		views[i] = RoleView{ServiceRole: r, ServiceName: line.DisplayName()}
		if n, ok := numbers[r.ID]; ok {
			views[i].ClientNo = &n
		}
	}
	return views, nil
}

// Get returns a single role of the line, deleted or not.
func (s *RoleService) Get(ctx context.Context, line *servicetag.Line, id uint) (*RoleView, error) {
	role, err := s.loadRole(s.db.WithContext(ctx), line, id)
	if err != nil {
		return nil, err
	}
	view := &RoleView{ServiceRole: *role, ServiceName: line.DisplayName()}

	var mirror models.RoleIndex
	err = s.db.WithContext(ctx).Where("service_role_id = ?", role.ID).First(&mirror).Error
	switch {
	case err == nil:
		view.ClientNo = &mirror.ClientNo
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return view, nil
}

// Update changes the role's own fields. The roles index row carries only the
// line's display name and client number, so it is not touched.
func (s *RoleService) Update(ctx context.Context, line *servicetag.Line, actorID uuid.UUID, id uint, req UpdateRoleRequest) (*RoleView, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := s.loadRole(tx, line, id)
		if err != nil {
			return err
		}
		if role.IsDeleted {
			return &ConflictError{Message: "role is deleted; restore it before updating"}
		}

		updates := map[string]interface{}{}
		if req.Title != nil {
			title := strings.TrimSpace(*req.Title)
			if title == "" || len(title) > maxTitleLength {
				return &ValidationError{Message: fmt.Sprintf("title must be 1-%d characters", maxTitleLength)}
			}
			updates["title"] = title
		}
		if req.Location != nil {
			updates["location"] = strings.TrimSpace(*req.Location)
		}
		if req.Status != nil {
			if !validStatus(*req.Status) {
				return &ValidationError{Message: fmt.Sprintf("invalid status %q", *req.Status)}
			}
			updates["status"] = *req.Status
		}
		if req.Attributes != nil {
			merged := make(map[string]interface{}, len(role.Attributes)+len(req.Attributes))
			for k, v := range role.Attributes {
				merged[k] = v
			}
			for k, v := range req.Attributes {
				merged[k] = v
			}
			attrs, err := line.SanitizeAttributes(merged)
			if err != nil {
				return &ValidationError{Message: err.Error()}
			}
			role.Attributes = attrs
			if err := tx.Model(role).Select("attributes").Updates(&models.ServiceRole{Attributes: attrs}).Error; err != nil {
				return fmt.Errorf("update attributes: %w", err)
			}
		}
		if len(updates) > 0 {
			if err := tx.Model(role).Updates(updates).Error; err != nil {
				return fmt.Errorf("update role: %w", err)
			}
		}

		audit.LogAction(tx, actorID, audit.ActionUpdateRole, roleResource(line, id), req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, line, id)
}

// SoftDelete marks the role and its roles index row deleted.
func (s *RoleService) SoftDelete(ctx context.Context, line *servicetag.Line, actorID uuid.UUID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := s.loadRole(tx, line, id)
		if err != nil {
			return err
		}
		if role.IsDeleted {
			return &ConflictError{Message: "role is already deleted"}
		}
		mirror, err := s.loadMirror(tx, line, role.ID)
		if err != nil {
			return err
		}

		if err := tx.Model(mirror).Update("is_deleted", true).Error; err != nil {
			return fmt.Errorf("soft delete roles index row: %w", err)
		}
		if err := tx.Model(role).Update("is_deleted", true).Error; err != nil {
			return fmt.Errorf("soft delete role: %w", err)
		}

		audit.LogAction(tx, actorID, audit.ActionSoftDeleteRole, roleResource(line, id), map[string]interface{}{
			"client_no": mirror.ClientNo,
		})
		return nil
	})
}

// HardDelete removes the roles index row, then the role. The attachment is
// removed once both rows are gone.
func (s *RoleService) HardDelete(ctx context.Context, line *servicetag.Line, actorID uuid.UUID, id uint) error {
	var attachmentKey string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := s.loadRole(tx, line, id)
		if err != nil {
			return err
		}
		mirror, err := s.loadMirror(tx, line, role.ID)
		if err != nil {
			return err
		}

		if err := tx.Delete(mirror).Error; err != nil {
			return fmt.Errorf("delete roles index row: %w", err)
		}
		if err := tx.Delete(role).Error; err != nil {
			return fmt.Errorf("delete role: %w", err)
		}
		attachmentKey = role.AttachmentKey

		audit.LogAction(tx, actorID, audit.ActionHardDeleteRole, roleResource(line, id), map[string]interface{}{
			"client_no": mirror.ClientNo,
			"title":     role.Title,
		})
		return nil
	})
	if err != nil {
		return err
	}

	if attachmentKey != "" && s.store != nil {
		if err := s.store.Delete(ctx, attachmentKey); err != nil {
			slog.Warn("Failed to remove attachment of deleted role", "key", attachmentKey, "error", err)
		}
	}
	return nil
}

// Restore clears the deleted flag on the role and its roles index row. While
// the role was deleted its client number may have been handed to another
// client; in that case the client's current number (or a fresh one) is used.
func (s *RoleService) Restore(ctx context.Context, line *servicetag.Line, actorID uuid.UUID, id uint) (*RoleView, error) {
	unlock, err := s.locker.Lock(ctx, clientno.LockKey(line.Tag))
	if err != nil {
		return nil, fmt.Errorf("acquire client number lock: %w", err)
	}
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := s.loadRole(tx, line, id)
		if err != nil {
			return err
		}
		if !role.IsDeleted {
			return &ConflictError{Message: "role is not deleted"}
		}
		mirror, err := s.loadMirror(tx, line, role.ID)
		if err != nil {
			return err
		}

		n, err := s.restoredClientNo(ctx, tx, mirror)
		if err != nil {
			return err
		}
		if err := clientno.ValidateRange(line.Tag, n); err != nil {
			return err
		}

		previous := mirror.ClientNo
		if err := tx.Model(mirror).Updates(map[string]interface{}{"is_deleted": false, "client_no": n}).Error; err != nil {
			return fmt.Errorf("restore roles index row: %w", err)
		}
		if err := tx.Model(role).Update("is_deleted", false).Error; err != nil {
			return fmt.Errorf("restore role: %w", err)
		}

		audit.LogAction(tx, actorID, audit.ActionRestoreRole, roleResource(line, id), map[string]interface{}{
			"client_no":          n,
			"previous_client_no": previous,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, line, id)
}

func (s *RoleService) restoredClientNo(ctx context.Context, tx *gorm.DB, mirror *models.RoleIndex) (int, error) {
	alloc := clientno.New(tx)
	current, err := alloc.ClientNoFor(ctx, mirror.ClientID, mirror.ServiceTag)
	if err != nil {
		return 0, err
	}
	if current != nil {
		return *current, nil
	}

	var taken int64
	err = tx.Model(&models.RoleIndex{}).
		Where("service_tag = ? AND client_no = ? AND is_deleted = ? AND client_id <> ?",
			mirror.ServiceTag, mirror.ClientNo, false, mirror.ClientID).
		Count(&taken).Error
	if err != nil {
		return 0, err
	}
	if taken == 0 {
		return mirror.ClientNo, nil
	}
	return alloc.NextAvailable(ctx, mirror.ServiceTag)
}

// RepairMirrors creates missing roles index rows, re-syncs deleted flags that
// drifted apart and removes index rows whose role no longer exists.
func (s *RoleService) RepairMirrors(ctx context.Context, actorID uuid.UUID) (*RepairReport, error) {
	report := &RepairReport{}
	for _, line := range servicetag.Lines() {
		if err := s.repairLine(ctx, line, report); err != nil {
			return report, fmt.Errorf("repair %s: %w", line.Key, err)
		}
	}

	if report.Created+report.Resynced+report.Orphans > 0 {
		audit.LogAction(s.db.WithContext(ctx), actorID, audit.ActionRepairMirrors, "roles", report)
	}
	slog.Info("Roles index repaired", "created", report.Created, "resynced", report.Resynced, "orphans_removed", report.Orphans)
	return report, nil
}

func (s *RoleService) repairLine(ctx context.Context, line *servicetag.Line, report *RepairReport) error {
	unlock, err := s.locker.Lock(ctx, clientno.LockKey(line.Tag))
	if err != nil {
		return fmt.Errorf("acquire client number lock: %w", err)
	}
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orphans := tx.Where("service_tag = ? AND service_role_id NOT IN (?)", line.Tag,
			tx.Model(&models.ServiceRole{}).Select("id"))
		res := orphans.Delete(&models.RoleIndex{})
		if res.Error != nil {
			return fmt.Errorf("remove orphaned rows: %w", res.Error)
		}
		report.Orphans += int(res.RowsAffected)

		var missing []models.ServiceRole
		err := tx.Where("service_tag = ? AND id NOT IN (?)", line.Tag,
			tx.Model(&models.RoleIndex{}).Select("service_role_id")).
			Order("id ASC").
			Find(&missing).Error
		if err != nil {
			return fmt.Errorf("find roles without index row: %w", err)
		}

		alloc := clientno.New(tx)
		for _, role := range missing {
			n, _, err := alloc.Resolve(ctx, role.ClientID, line.Tag)
			if err != nil {
				return err
			}
			mirror := models.RoleIndex{
				Name:          line.DisplayName(),
				ClientNo:      n,
				ServiceTag:    line.Tag,
				ClientID:      role.ClientID,
				ServiceRoleID: role.ID,
				IsDeleted:     role.IsDeleted,
			}
			if err := tx.Create(&mirror).Error; err != nil {
				return fmt.Errorf("create roles index row: %w", err)
			}
			report.Created++
		}

		var drifted []models.RoleIndex
		err = tx.Model(&models.RoleIndex{}).
			Select("roles.*").
			Joins("JOIN service_roles ON service_roles.id = roles.service_role_id").
			Where("roles.service_tag = ? AND roles.is_deleted <> service_roles.is_deleted", line.Tag).
			Find(&drifted).Error
		if err != nil {
			return fmt.Errorf("find drifted rows: %w", err)
		}
		for i := range drifted {
			m := &drifted[i]
			updates := map[string]interface{}{"is_deleted": !m.IsDeleted}
			if m.IsDeleted {
				// Reviving the row makes its number live again; it may have
				// been handed to another client in the meantime.
				n, err := s.restoredClientNo(ctx, tx, m)
				if err != nil {
					return err
				}
				if err := clientno.ValidateRange(line.Tag, n); err != nil {
					return err
				}
				updates["client_no"] = n
			}
			if err := tx.Model(m).Updates(updates).Error; err != nil {
				return fmt.Errorf("resync roles index row: %w", err)
			}
			report.Resynced++
		}
		return nil
	})
}

func (s *RoleService) loadRole(db *gorm.DB, line *servicetag.Line, id uint) (*models.ServiceRole, error) {
	var role models.ServiceRole
	if err := db.Where("id = ? AND service_tag = ?", id, line.Tag).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (s *RoleService) loadMirror(db *gorm.DB, line *servicetag.Line, roleID uint) (*models.RoleIndex, error) {
	var mirror models.RoleIndex
	if err := db.Where("service_tag = ? AND service_role_id = ?", line.Tag, roleID).First(&mirror).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Warn("Role has no roles index row", "service", line.Key, "role_id", roleID)
			return nil, ErrMirrorMissing
		}
		return nil, err
	}
	return &mirror, nil
}

func validStatus(st models.RoleStatus) bool {
	switch st {
	case models.RoleStatusActive, models.RoleStatusOnHold, models.RoleStatusFilled, models.RoleStatusCancelled:
		return true
	}
	return false
}

func roleResource(line *servicetag.Line, id uint) string {
	return fmt.Sprintf("%s:%d", line.Key, id)
}
