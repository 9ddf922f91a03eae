package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"socialgraph/db"
	"socialgraph/models"
	apperr "socialgraph/pkg/errors"

	"gorm.io/gorm"
)

// IdentityStore is everything the friend graph and search need to know
// about users. Users are read-only from their side.
type IdentityStore interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []int64) ([]models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	SearchByName(ctx context.Context, term string, offset, limit int) ([]models.User, int64, error)
}

// UserStore is the gorm-backed IdentityStore
type UserStore struct{}

func NewUserStore() *UserStore {
	return &UserStore{}
}

func (s *UserStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := db.GetReadOnlyDB(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &user, nil
}

// GetUsersByIDs returns the users that exist among ids, ordered by id
func (s *UserStore) GetUsersByIDs(ctx context.Context, ids []int64) ([]models.User, error) {
	users := make([]models.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	err := db.GetReadOnlyDB(ctx).Where("id IN ?", ids).Order("id ASC").Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return users, nil
}

// FindByEmail matches email exactly, ignoring case
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := db.GetReadOnlyDB(ctx).Where("LOWER(email) = ?", normalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return &user, nil
}

// SearchByName returns one window of users whose name contains term
// (case-insensitive), sorted by name, plus the total number of matches.
func (s *UserStore) SearchByName(ctx context.Context, term string, offset, limit int) ([]models.User, int64, error) {
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	matching := func() *gorm.DB {
		return db.GetReadOnlyDB(ctx).Model(&models.User{}).Where("LOWER(name) LIKE ? ESCAPE '\\'", pattern)
	}

	var total int64
	if err := matching().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	users := make([]models.User, 0, limit)
	if total == 0 || int64(offset) >= total {
		return users, total, nil
	}
	err := matching().
		Order("LOWER(name) ASC").Order("name ASC").Order("id ASC").
		Offset(offset).Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search users: %w", err)
	}
	return users, total, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
