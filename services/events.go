package services

import (
	"context"
	"time"

	"socialgraph/models"
)

type FriendEventType string

const (
	FriendRequestSent     FriendEventType = "sent"
	FriendRequestAccepted FriendEventType = "accepted"
	FriendRequestRejected FriendEventType = "rejected"
)

// FriendEvent describes a committed ledger mutation
type FriendEvent struct {
	Type       FriendEventType `json:"type"`
	RequestID  int64           `json:"request_id"`
	FromUserID int64           `json:"from_user_id"`
	ToUserID   int64           `json:"to_user_id"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// RoutingKey is the topic the event is published under
func (e FriendEvent) RoutingKey() string {
	return "friend_request." + string(e.Type)
}

func newFriendEvent(t FriendEventType, req *models.FriendRequest, at time.Time) FriendEvent {
	return FriendEvent{
		Type:       t,
		RequestID:  req.ID,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		OccurredAt: at,
	}
}

type EventPublisher interface {
	Publish(ctx context.Context, event FriendEvent) error
}

// NoopPublisher drops every event
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, FriendEvent) error { return nil }
