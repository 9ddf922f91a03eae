package services

import (
	"context"
	"strings"

	"socialgraph/models"
	apperr "socialgraph/pkg/errors"
)

// UserPage is one page of a name search
type UserPage struct {
	Users    []models.User
	Count    int64
	Page     int
	PageSize int
}

func (p *UserPage) HasNext() bool {
	return int64(p.Page*p.PageSize) < p.Count
}

func (p *UserPage) HasPrevious() bool {
	return p.Page > 1
}

// SearchResult holds exactly one of User (exact email hit) or Page
type SearchResult struct {
	User *models.User
	Page *UserPage
}

type SearchService struct {
	users           IdentityStore
	defaultPageSize int
	maxPageSize     int
}

func NewSearchService(users IdentityStore, defaultPageSize, maxPageSize int) *SearchService {
	if defaultPageSize <= 0 {
		defaultPageSize = 10
	}
	if maxPageSize < defaultPageSize {
		maxPageSize = defaultPageSize
	}
	return &SearchService{users: users, defaultPageSize: defaultPageSize, maxPageSize: maxPageSize}
}

// Search tries an exact, case-insensitive email match first and falls back
// to a paginated name-substring match. page is 1-based; pageSize <= 0 uses
// the default and anything above the maximum is clamped.
func (s *SearchService) Search(ctx context.Context, query string, page, pageSize int) (*SearchResult, error) {
	term := strings.TrimSpace(query)
	if term == "" {
		return nil, apperr.BadRequest("search term required")
	}

	user, err := s.users.FindByEmail(ctx, term)
	if err == nil {
		return &SearchResult{User: user}, nil
	}
	if apperr.TypeOf(err) != apperr.ErrorTypeNotFound {
		return nil, asAppError(err, "failed to search users")
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.defaultPageSize
	}
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}

	users, total, err := s.users.SearchByName(ctx, term, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, asAppError(err, "failed to search users")
	}
	return &SearchResult{Page: &UserPage{
		Users:    users,
		Count:    total,
		Page:     page,
		PageSize: pageSize,
	}}, nil
}
