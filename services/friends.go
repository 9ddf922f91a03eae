package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"socialgraph/db"
	"socialgraph/models"
	apperr "socialgraph/pkg/errors"
	"socialgraph/pkg/logger"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FriendService owns the friend request ledger and derives the friend
// graph and pending inbox from it.
type FriendService struct {
	users  IdentityStore
	cache  FriendsCache
	events EventPublisher
	group  singleflight.Group
	now    func() time.Time
}

func NewFriendService(users IdentityStore, cache FriendsCache, events EventPublisher) *FriendService {
	if cache == nil {
		cache = noopFriendsCache{}
	}
	if events == nil {
		events = NoopPublisher{}
	}
	return &FriendService{
		users:  users,
		cache:  cache,
		events: events,
		now:    time.Now,
	}
}

// SendRequest creates a pending request from -> toUserID
func (s *FriendService) SendRequest(ctx context.Context, from *models.User, toUserID int64) (*models.FriendRequest, error) {
	if toUserID <= 0 {
		return nil, apperr.BadRequest(`please provide a "to_user" id`)
	}
	// the sender always exists, so this holds whether or not the lookup would
	if from.ID == toUserID {
		return nil, apperr.BadRequest("cannot friend-request self")
	}
	to, err := s.users.GetUser(ctx, toUserID)
	if err != nil {
		return nil, err
	}

	var created *models.FriendRequest
	err = s.inTransaction(ctx, "request already sent", func(tx *gorm.DB) error {
		var existing int64
		err := tx.Model(&models.FriendRequest{}).
			Where("from_user_id = ? AND to_user_id = ?", from.ID, to.ID).
			Count(&existing).Error
		if err != nil {
			return fmt.Errorf("failed to check existing request: %w", err)
		}
		if existing > 0 {
			return apperr.Conflict("request already sent")
		}

		req := &models.FriendRequest{
			FromUserID: from.ID,
			ToUserID:   to.ID,
			Status:     models.FriendRequestPending,
			CreatedAt:  s.now(),
		}
		if err := tx.Create(req).Error; err != nil {
			if isDuplicateKey(err) {
				return apperr.Conflict("request already sent")
			}
			return fmt.Errorf("failed to create friend request: %w", err)
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to send friend request")
	}

	logger.Get().Info("friend request sent",
		zap.Int64("request_id", created.ID),
		zap.Int64("from_user", created.FromUserID),
		zap.Int64("to_user", created.ToUserID))
	s.publish(ctx, newFriendEvent(FriendRequestSent, created, created.CreatedAt))
	return created, nil
}

// AcceptRequest marks the request accepted. Only its recipient may do so;
// accepting an already accepted request succeeds without change.
func (s *FriendService) AcceptRequest(ctx context.Context, requestID int64, actor *models.User) (*models.FriendRequest, error) {
	var req models.FriendRequest
	var transitioned bool
	err := s.inTransaction(ctx, "friend request changed concurrently", func(tx *gorm.DB) error {
		req = models.FriendRequest{}
		transitioned = false
		if err := lockRequest(tx, requestID, &req); err != nil {
			return err
		}
		if req.ToUserID != actor.ID {
			return apperr.Forbidden("you are not authorized to accept this friend request")
		}
		if req.IsAccepted() {
			return nil
		}

		acceptedAt := s.now()
		res := tx.Model(&models.FriendRequest{}).
			Where("id = ? AND status = ?", req.ID, models.FriendRequestPending).
			Updates(map[string]interface{}{
				"status":      models.FriendRequestAccepted,
				"accepted_at": acceptedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to accept friend request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("friend request not found")
		}
		req.Status = models.FriendRequestAccepted
		req.AcceptedAt = &acceptedAt
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to accept friend request")
	}

	if transitioned {
		if err := s.cache.Invalidate(ctx, req.FromUserID, req.ToUserID); err != nil {
			logger.Get().Warn("failed to invalidate friends cache", zap.Error(err))
		}
		logger.Get().Info("friend request accepted",
			zap.Int64("request_id", req.ID),
			zap.Int64("from_user", req.FromUserID),
			zap.Int64("to_user", req.ToUserID))
		s.publish(ctx, newFriendEvent(FriendRequestAccepted, &req, *req.AcceptedAt))
	}
	return &req, nil
}

// RejectRequest deletes a pending request. Only its recipient may do so.
func (s *FriendService) RejectRequest(ctx context.Context, requestID int64, actor *models.User) error {
	var req models.FriendRequest
	err := s.inTransaction(ctx, "friend request changed concurrently", func(tx *gorm.DB) error {
		req = models.FriendRequest{}
		if err := lockRequest(tx, requestID, &req); err != nil {
			return err
		}
		if req.ToUserID != actor.ID {
			return apperr.Forbidden("you are not authorized to reject this friend request")
		}
		if req.IsAccepted() {
			return apperr.Conflict("friend request already accepted")
		}

		res := tx.Where("id = ? AND status = ?", req.ID, models.FriendRequestPending).Delete(&models.FriendRequest{})
		if res.Error != nil {
			return fmt.Errorf("failed to reject friend request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("friend request not found")
		}
		return nil
	})
	if err != nil {
		return asAppError(err, "failed to reject friend request")
	}

	logger.Get().Info("friend request rejected",
		zap.Int64("request_id", req.ID),
		zap.Int64("from_user", req.FromUserID),
		zap.Int64("to_user", req.ToUserID))
	s.publish(ctx, newFriendEvent(FriendRequestRejected, &req, s.now()))
	return nil
}

// ListFriends returns every user connected to user by an accepted request,
// in either direction.
func (s *FriendService) ListFriends(ctx context.Context, user *models.User) ([]models.User, error) {
	ids, err := s.friendIDs(ctx, user.ID)
	if err != nil {
		return nil, asAppError(err, "failed to list friends")
	}
	friends, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, asAppError(err, "failed to list friends")
	}
	return friends, nil
}

// ListPendingRequests returns the requests user has received and not yet
// answered. Requests user sent are never included.
func (s *FriendService) ListPendingRequests(ctx context.Context, user *models.User) ([]models.FriendRequest, error) {
	requests := make([]models.FriendRequest, 0)
	err := db.GetReadOnlyDB(ctx).
		Where("to_user_id = ? AND status = ?", user.ID, models.FriendRequestPending).
		Order("created_at ASC").Order("id ASC").
		Find(&requests).Error
	if err != nil {
		return nil, apperr.Internal("failed to list pending requests", err)
	}
	return requests, nil
}

func (s *FriendService) friendIDs(ctx context.Context, userID int64) ([]int64, error) {
	ids, ok, err := s.cache.Get(ctx, userID)
	if err != nil {
		logger.Get().Warn("friends cache read failed", zap.Int64("user_id", userID), zap.Error(err))
	} else if ok {
		return ids, nil
	}

	// the generation is read before the ledger so an accept landing in
	// between makes the fill below a no-op. Keying the flight by it keeps
	// callers that arrive after an invalidation off an older derivation.
	generation, err := s.cache.Generation(ctx, userID)
	if err != nil {
		logger.Get().Warn("friends cache generation read failed", zap.Int64("user_id", userID), zap.Error(err))
		return deriveFriendIDs(ctx, userID)
	}

	key := strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(generation, 10)
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		ids, err := deriveFriendIDs(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, userID, generation, ids); err != nil {
			logger.Get().Warn("friends cache write failed", zap.Int64("user_id", userID), zap.Error(err))
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]int64), nil
}

// deriveFriendIDs reads the accepted edges touching userID and returns the
// other endpoints, deduplicated, in ledger order. It reads the primary: a
// lagging replica would put a pre-accept set into the cache.
func deriveFriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	var accepted []models.FriendRequest
	err := db.GetWriteDB(ctx).
		Where("(from_user_id = ? OR to_user_id = ?) AND status = ?", userID, userID, models.FriendRequestAccepted).
		Order("id ASC").
		Find(&accepted).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read accepted requests: %w", err)
	}

	seen := make(map[int64]struct{}, len(accepted))
	ids := make([]int64, 0, len(accepted))
	for i := range accepted {
		other := accepted[i].Other(userID)
		if other == userID {
			continue
		}
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		ids = append(ids, other)
	}
	return ids, nil
}

func (s *FriendService) publish(ctx context.Context, event FriendEvent) {
	if err := s.events.Publish(ctx, event); err != nil {
		logger.Get().Warn("failed to publish friend event",
			zap.String("type", string(event.Type)),
			zap.Int64("request_id", event.RequestID),
			zap.Error(err))
	}
}

// inTransaction runs fn in a write transaction. A transient persistence
// conflict is retried once; if it happens again the caller gets Conflict.
func (s *FriendService) inTransaction(ctx context.Context, conflictMessage string, fn func(tx *gorm.DB) error) error {
	err := db.GetWriteDB(ctx).Transaction(fn)
	if err == nil || !isTransient(err) {
		return err
	}

	logger.Get().Warn("retrying transaction after transient conflict", zap.Error(err))
	err = db.GetWriteDB(ctx).Transaction(fn)
	if err != nil && isTransient(err) {
		return apperr.New(apperr.ErrorTypeConflict, conflictMessage, err)
	}
	return err
}

// lockRequest loads the request row, holding a row lock where the dialect
// has one. SQLite serializes writers instead.
func lockRequest(tx *gorm.DB, requestID int64, req *models.FriendRequest) error {
	q := tx.Where("id = ?", requestID)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("friend request not found")
		}
		return fmt.Errorf("failed to load friend request %d: %w", requestID, err)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// isTransient reports serialization failures, deadlocks and lock timeouts
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// asAppError passes categorized errors through and marks the rest internal
func asAppError(err error, message string) error {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internal(message, err)
}
