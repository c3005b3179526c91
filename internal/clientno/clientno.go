// Package clientno assigns per-client, per-service-tag client numbers from
// the fixed range each tag owns.
package clientno

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hirewire/portal/internal/models"
	"github.com/hirewire/portal/internal/servicetag"
	"gorm.io/gorm"
)

var (
	// ErrInvalidServiceTag is returned for tags outside the range table.
	ErrInvalidServiceTag = errors.New("invalid service tag")
	// ErrRangeExhausted is returned when every number in a tag's range is in use.
	ErrRangeExhausted = errors.New("no client numbers available")
	// ErrOutOfRange is returned when a client number lies outside its tag's range.
	ErrOutOfRange = errors.New("client number outside service tag range")
)

// Allocator reads the roles table to reuse or hand out client numbers. It
// does not lock; callers serialize allocation per tag and insert the row in
// the same transaction.
type Allocator struct {
	db *gorm.DB
}

// New creates an allocator over db (a connection or a transaction).
func New(db *gorm.DB) *Allocator {
	return &Allocator{db: db}
}

// ClientNoFor returns the client number already held by clientID for tag,
// or nil when the client has no live role under that tag.
func (a *Allocator) ClientNoFor(ctx context.Context, clientID uuid.UUID, tag int) (*int, error) {
	var row models.RoleIndex
	err := a.db.WithContext(ctx).
		Select("client_no").
		Where("client_id = ? AND service_tag = ? AND is_deleted = ?", clientID, tag, false).
		Order("id ASC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup client number: %w", err)
	}
	n := row.ClientNo
	return &n, nil
}

// NextAvailable returns the lowest number in tag's range not used by any
// live role row of that tag.
func (a *Allocator) NextAvailable(ctx context.Context, tag int) (int, error) {
	r, ok := servicetag.Lookup(tag)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrInvalidServiceTag, tag)
	}

	var used []int
	err := a.db.WithContext(ctx).
		Model(&models.RoleIndex{}).
		Distinct("client_no").
		Where("service_tag = ? AND is_deleted = ?", tag, false).
		Pluck("client_no", &used).Error
	if err != nil {
		return 0, fmt.Errorf("load used client numbers: %w", err)
	}

	return firstGap(r, used)
}

func firstGap(r servicetag.Range, used []int) (int, error) {
	taken := make(map[int]struct{}, len(used))
	for _, n := range used {
		taken[n] = struct{}{}
	}
	for n := r.Min; n <= r.Max; n++ {
		if _, ok := taken[n]; !ok {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w for service tag %d (%d-%d)", ErrRangeExhausted, r.Tag, r.Min, r.Max)
}

// Resolve returns the client's existing number for tag, allocating the next
// free one when there is none.
func (a *Allocator) Resolve(ctx context.Context, clientID uuid.UUID, tag int) (int, bool, error) {
	existing, err := a.ClientNoFor(ctx, clientID, tag)
	if err != nil {
		return 0, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	n, err := a.NextAvailable(ctx, tag)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// ValidateRange checks that n belongs to tag's range.
func ValidateRange(tag, n int) error {
	r, ok := servicetag.Lookup(tag)
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidServiceTag, tag)
	}
	if !r.Contains(n) {
		return fmt.Errorf("%w: %d not in %d-%d for tag %d", ErrOutOfRange, n, r.Min, r.Max, tag)
	}
	return nil
}

// LockKey is the lock name serializing allocation for tag.
func LockKey(tag int) string {
	return fmt.Sprintf("clientno:%d", tag)
}
