package services

import (
	"context"
	"sync"
	"testing"

	"socialgraph/db"
	"socialgraph/models"
	apperr "socialgraph/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFriendService() *FriendService {
	return NewFriendService(NewUserStore(), nil, nil)
}

func TestSendRequestThenDuplicateConflicts(t *testing.T) {
	setupTestDB(t)
	svc := newTestFriendService()
	ctx := context.Background()
	alice, bob := createTestUser(t, "Alice"), createTestUser(t, "Bob")

	req, err := svc.SendRequest(ctx, alice, bob.ID)
	require.NoError(t, err)
	assert.NotZero(t, req.ID)
	assert.Equal(t, alice.ID, req.FromUserID)
	assert.Equal(t, bob.ID, req.ToUserID)
	assert.Equal(t, models.FriendRequestPending, req.Status)
	assert.False(t, req.CreatedAt.IsZero())

	_, err = svc.SendRequest(ctx, alice, bob.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.ErrorTypeConflict, apperr.TypeOf(err))
	assert.Equal(t, "request already sent", apperr.PublicMessage(err))
}

func TestSendRequestAfterAcceptStillConflicts(t *testing.T) {
	setupTestDB(t)
	svc := newTestFriendService()
	ctx := context.Background()
	alice, bob := createTestUser(t, "Alice"), createTestUser(t, "Bob")

	req, err := svc.SendRequest(ctx, alice, bob.ID)
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, req.ID, bob)
	require.NoError(t, err)

	_, err = svc.SendRequest(ctx, alice, bob.ID)
	assert.Equal(t, apperr.ErrorTypeConflict, apperr.TypeOf(err))
}

func TestSendRequestToSelf(t *testing.T) {
	setupTestDB(t)
	svc := newTestFriendService()
	ctx := context.Background()

	alice := createTestUser(t, "Alice")
	_, err := svc.SendRequest(ctx, alice, alice.ID)
	assert.Equal(t, apperr.ErrorTypeBadRequest, apperr.TypeOf(err))
	assert.Equal(t, "cannot friend-request self", apperr.PublicMessage(err))

	// a user that is not in the store at all
	ghost := &models.User{ID: 9999}
	_, err = svc.SendRequest(ctx, ghost, ghost.ID)
	assert.Equal(t, apperr.ErrorTypeBadRequest, apperr.TypeOf(err))
}

func TestSendRequestValidation(t *testing.T) {
	setupTestDB(t)
	svc := newTestFriendService()
	ctx := context.Background()
	alice := createTestUser(t, "Alice")

	_, err := svc.SendRequest(ctx, alice, 0)
	assert.Equal(t, apperr.ErrorTypeBadRequest, apperr.TypeOf(err))

	_, err = svc.SendRequest(ctx, alice, alice.ID+1000)
	assert.Equal(t, apperr.ErrorTypeNotFound, apperr.TypeOf(err))
}

func TestAcceptMakesFriendshipSymmetric(t *testing.T) {
	setupTestDB(t)
	svc := newTestFriendService()
	ctx := context.Background()
	alice, bob := createTestUser(t, "Alice"), createTestUser(t, "Bob")

	req, err := svc.SendRequest(ctx, alice, bob.ID)
	require.NoError(t, err)

	friends, err := svc.ListFriends(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, friends)
	friends, err = svc.ListFriends(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, friends)

	accepted, err := svc.AcceptRequest(ctx, req.ID, bob)
	require.NoError(t, err)
	assert.True(t, accepted.IsAccepted())
	require.NotNil(t, accepted.AcceptedAt)

	friends, err = svc.ListFriends(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob.ID}, userIDs(friends))

	friends, err = svc.ListFriends(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []int64{alice.ID}, userIDs(friends))
}

func TestAcceptIsIdempotent(t *testing.T) {
	setupTestDB(t)
	svc := newTestFriendService()
	ctx := context.Background()
	alice, bob := createTestUser(t, "Alice"), createTestUser(t, "Bob")

	req, err := svc.SendRequest(ctx, alice, bob.ID)
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, req.ID, bob)
	require.NoError(t, err)

	again, err := svc.AcceptRequest(ctx, req.ID, bob)
	require.NoError(t, err)
	assert.True(t, again.IsAccepted())

	friends, err := svc.ListFriends(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, friends, 1)
}

func TestRejectDeletesAndAllowsResend(t *testing.T) {
	setupTestDB(t)
	svc := newTestFriendService()
	ctx := context.Background()
	alice, bob := createTestUser(t, "Alice"), createTestUser(t, "Bob")

	req, err := svc.SendRequest(ctx, alice, bob.ID)
	require.NoError(t, err)

	pending, err := svc.ListPendingRequests(ctx, bob)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, svc.RejectRequest(ctx, req.ID, bob))

	pending, err = svc.ListPendingRequests(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var count int64
	require.NoError(t, db.ORM.Model(&models.FriendRequest{}).Where("id = ?", req.ID).Count(&count).Error)
	assert.Zero(t, count)

	resent, err := svc.SendRequest(ctx, alice, bob.ID)
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, resent.ID)
}

func TestOnlyRecipientMayAnswer(t *testing.T) {
	setupTestDB(t)
	svc := newTestFriendService()
	ctx := context.Background()
	alice, bob, carol := createTestUser(t, "Alice"), createTestUser(t, "Bob"), createTestUser(t, "Carol")

	req, err := svc.SendRequest(ctx, alice, bob.ID)
	require.NoError(t, err)

	for _, actor := range []*models.User{alice, carol} {
		_, err = svc.AcceptRequest(ctx, req.ID, actor)
		assert.Equal(t, apperr.ErrorTypeForbidden, apperr.TypeOf(err))

		err = svc.RejectRequest(ctx, req.ID, actor)
		assert.Equal(t, apperr.ErrorTypeForbidden, apperr.TypeOf(err))
	}

	pending, err := svc.ListPendingRequests(ctx, bob)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.FriendRequestPending, pending[0].Status)
}

func TestAnswerUnknownRequest(t *testing.T) {
	setupTestDB(t)
	svc := newTestFriendService()
	ctx := context.Background()
	bob := createTestUser(t, "Bob")

	_, err := svc.AcceptRequest(ctx, 12345, bob)
	assert.Equal(t, apperr.ErrorTypeNotFound, apperr.TypeOf(err))

	err = svc.RejectRequest(ctx, 12345, bob)
	assert.Equal(t, apperr.ErrorTypeNotFound, apperr.TypeOf(err))
}

func TestRejectAfterAcceptConflicts(t *testing.T) {
	setupTestDB(t)
	svc := newTestFriendService()
	ctx := context.Background()
	alice, bob := createTestUser(t, "Alice"), createTestUser(t, "Bob")

	req, err := svc.SendRequest(ctx, alice, bob.ID)
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, req.ID, bob)
	require.NoError(t, err)

	err = svc.RejectRequest(ctx, req.ID, bob)
	assert.Equal(t, apperr.ErrorTypeConflict, apperr.TypeOf(err))

	friends, err := svc.ListFriends(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []int64{alice.ID}, userIDs(friends))
}

func TestPendingInboxOnlyHoldsIncomingUnanswered(t *testing.T) {
	setupTestDB(t)
	svc := newTestFriendService()
	ctx := context.Background()
	alice, bob, carol, dave := createTestUser(t, "Alice"), createTestUser(t, "Bob"), createTestUser(t, "Carol"), createTestUser(t, "Dave")

	// incoming, stays pending
	fromCarol, err := svc.SendRequest(ctx, carol, alice.ID)
	require.NoError(t, err)
	// incoming, accepted
	fromDave, err := svc.SendRequest(ctx, dave, alice.ID)
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, fromDave.ID, alice)
	require.NoError(t, err)
	// outgoing
	_, err = svc.SendRequest(ctx, alice, bob.ID)
	require.NoError(t, err)

	pending, err := svc.ListPendingRequests(ctx, alice)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, fromCarol.ID, pending[0].ID)

	pending, err = svc.ListPendingRequests(ctx, bob)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, alice.ID, pending[0].FromUserID)
}

func TestReverseDirectionRequestsAreIndependent(t *testing.T) {
	setupTestDB(t)
	svc := newTestFriendService()
	ctx := context.Background()
	alice, bob := createTestUser(t, "Alice"), createTestUser(t, "Bob")

	ab, err := svc.SendRequest(ctx, alice, bob.ID)
	require.NoError(t, err)
	ba, err := svc.SendRequest(ctx, bob, alice.ID)
	require.NoError(t, err)

	_, err = svc.AcceptRequest(ctx, ab.ID, bob)
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, ba.ID, alice)
	require.NoError(t, err)

	// two accepted rows, one friendship
	friends, err := svc.ListFriends(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob.ID}, userIDs(friends))
}

func TestConcurrentSendRequestCreatesOneRow(t *testing.T) {
	setupTestDB(t)
	svc := newTestFriendService()
	ctx := context.Background()
	alice, bob := createTestUser(t, "Alice"), createTestUser(t, "Bob")

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.SendRequest(ctx, alice, bob.ID)
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case apperr.TypeOf(err) == apperr.ErrorTypeConflict:
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)

	var rows int64
	require.NoError(t, db.ORM.Model(&models.FriendRequest{}).
		Where("from_user_id = ? AND to_user_id = ?", alice.ID, bob.ID).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestConcurrentAcceptAndRejectHaveOneOutcome(t *testing.T) {
	setupTestDB(t)
	svc := newTestFriendService()
	ctx := context.Background()
	alice, bob := createTestUser(t, "Alice"), createTestUser(t, "Bob")

	req, err := svc.SendRequest(ctx, alice, bob.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var acceptErr, rejectErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, acceptErr = svc.AcceptRequest(ctx, req.ID, bob)
	}()
	go func() {
		defer wg.Done()
		rejectErr = svc.RejectRequest(ctx, req.ID, bob)
	}()
	wg.Wait()

	if acceptErr == nil {
		assert.Equal(t, apperr.ErrorTypeConflict, apperr.TypeOf(rejectErr))
		friends, err := svc.ListFriends(ctx, alice)
		require.NoError(t, err)
		assert.Len(t, friends, 1)
	} else {
		require.NoError(t, rejectErr)
		assert.Equal(t, apperr.ErrorTypeNotFound, apperr.TypeOf(acceptErr))
		friends, err := svc.ListFriends(ctx, alice)
		require.NoError(t, err)
		assert.Empty(t, friends)
	}
}

func TestAcceptInvalidatesFriendsCache(t *testing.T) {
	setupTestDB(t)
	cache := newFakeFriendsCache()
	svc := NewFriendService(NewUserStore(), cache, nil)
	ctx := context.Background()
	alice, bob := createTestUser(t, "Alice"), createTestUser(t, "Bob")

	friends, err := svc.ListFriends(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, friends)
	cached, ok, _ := cache.Get(ctx, alice.ID)
	require.True(t, ok)
	assert.Empty(t, cached)

	req, err := svc.SendRequest(ctx, alice, bob.ID)
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, req.ID, bob)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{alice.ID, bob.ID}, cache.invalidated)

	friends, err = svc.ListFriends(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob.ID}, userIDs(friends))

	// idempotent accept does not touch the cache again
	_, err = svc.AcceptRequest(ctx, req.ID, bob)
	require.NoError(t, err)
	assert.Len(t, cache.invalidated, 2)
}

// slowFillCache parks the first cache fill until release is closed
type slowFillCache struct {
	*fakeFriendsCache
	once    sync.Once
	filling chan struct{}
	release chan struct{}
}

func (c *slowFillCache) Set(ctx context.Context, userID, generation int64, ids []int64) error {
	c.once.Do(func() { close(c.filling) })
	<-c.release
	return c.fakeFriendsCache.Set(ctx, userID, generation, ids)
}

func TestStaleFillDoesNotHideAcceptedFriend(t *testing.T) {
	setupTestDB(t)
	cache := &slowFillCache{
		fakeFriendsCache: newFakeFriendsCache(),
		filling:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	svc := NewFriendService(NewUserStore(), cache, nil)
	ctx := context.Background()
	alice, bob := createTestUser(t, "Alice"), createTestUser(t, "Bob")

	req, err := svc.SendRequest(ctx, alice, bob.ID)
	require.NoError(t, err)

	// alice's list is derived before the accept and cached after it
	done := make(chan error, 1)
	go func() {
		_, err := svc.ListFriends(ctx, alice)
		done <- err
	}()
	<-cache.filling
	_, err = svc.AcceptRequest(ctx, req.ID, bob)
	require.NoError(t, err)
	close(cache.release)
	require.NoError(t, <-done)

	friends, err := svc.ListFriends(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob.ID}, userIDs(friends))

	friends, err = svc.ListFriends(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []int64{alice.ID}, userIDs(friends))
}

func TestListFriendsServedFromCache(t *testing.T) {
	setupTestDB(t)
	cache := newFakeFriendsCache()
	svc := NewFriendService(NewUserStore(), cache, nil)
	ctx := context.Background()
	alice, bob := createTestUser(t, "Alice"), createTestUser(t, "Bob")

	require.NoError(t, cache.Set(ctx, alice.ID, 0, []int64{bob.ID}))
	friends, err := svc.ListFriends(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob.ID}, userIDs(friends))
}

func TestLedgerMutationsPublishEvents(t *testing.T) {
	setupTestDB(t)
	events := &recordingPublisher{}
	svc := NewFriendService(NewUserStore(), nil, events)
	ctx := context.Background()
	alice, bob, carol := createTestUser(t, "Alice"), createTestUser(t, "Bob"), createTestUser(t, "Carol")

	ab, err := svc.SendRequest(ctx, alice, bob.ID)
	require.NoError(t, err)
	cb, err := svc.SendRequest(ctx, carol, bob.ID)
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, ab.ID, bob)
	require.NoError(t, err)
	require.NoError(t, svc.RejectRequest(ctx, cb.ID, bob))

	// failures publish nothing
	_, _ = svc.SendRequest(ctx, alice, bob.ID)

	assert.Equal(t, []FriendEventType{
		FriendRequestSent, FriendRequestSent, FriendRequestAccepted, FriendRequestRejected,
	}, events.types())
	assert.Equal(t, "friend_request.rejected", events.events[3].RoutingKey())
	assert.Equal(t, cb.ID, events.events[3].RequestID)
}
