package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"socialgraph/db"
	"socialgraph/models"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	database, err := db.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database))
	db.ORM = database
	t.Cleanup(func() { _ = db.CloseDB() })
}

func createTestUser(t *testing.T, name string) *models.User {
	t.Helper()
	if name == "" {
		name = gofakeit.Name()
	}
	user := &models.User{
		Email:    strings.ToLower(fmt.Sprintf("%s.%s", uuid.NewString()[:8], gofakeit.Email())),
		Name:     name,
		Password: "unused",
	}
	require.NoError(t, db.ORM.Create(user).Error)
	return user
}

type fakeFriendsCache struct {
	mu          sync.Mutex
	data        map[int64][]int64
	generations map[int64]int64
	invalidated []int64
}

func newFakeFriendsCache() *fakeFriendsCache {
	return &fakeFriendsCache{data: map[int64][]int64{}, generations: map[int64]int64{}}
}

func (c *fakeFriendsCache) Get(_ context.Context, userID int64) ([]int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, ok := c.data[userID]
	return ids, ok, nil
}

func (c *fakeFriendsCache) Generation(_ context.Context, userID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID], nil
}

func (c *fakeFriendsCache) Set(_ context.Context, userID, generation int64, ids []int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[userID] != generation {
		return nil
	}
	c.data[userID] = ids
	return nil
}

func (c *fakeFriendsCache) Invalidate(_ context.Context, userIDs ...int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		c.generations[id]++
		delete(c.data, id)
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []FriendEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event FriendEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []FriendEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]FriendEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func userIDs(users []models.User) []int64 {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
