package models

import "time"

// FriendRequestStatus is the state of a live request. A rejected request
// has no status: its row is deleted.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
)

// FriendRequest is one directed edge of the ledger. At most one row exists
// per ordered (from, to) pair.
type FriendRequest struct {
	ID         int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	FromUserID int64               `gorm:"not null;uniqueIndex:idx_friend_requests_pair,priority:1" json:"from_user"`
	ToUserID   int64               `gorm:"not null;uniqueIndex:idx_friend_requests_pair,priority:2;index:idx_friend_requests_inbox,priority:1" json:"to_user"`
	Status     FriendRequestStatus `gorm:"size:20;not null;default:pending;index:idx_friend_requests_inbox,priority:2" json:"status"`
	CreatedAt  time.Time           `gorm:"autoCreateTime" json:"created_at"`
	AcceptedAt *time.Time          `json:"accepted_at,omitempty"`
}

func (FriendRequest) TableName() string {
	return "friend_requests"
}

func (r *FriendRequest) IsAccepted() bool {
	return r.Status == FriendRequestAccepted
}

// Other returns the endpoint of r that is not userID
func (r *FriendRequest) Other(userID int64) int64 {
	if r.FromUserID == userID {
		return r.ToUserID
	}
	return r.FromUserID
}
