package handlers

import (
	"net/http"
	"time"

	"socialgraph/api/dto"
	"socialgraph/api/middleware"
	apperr "socialgraph/pkg/errors"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) SendFriendRequest(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.SendFriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.BadRequest("to_user is required"))
		return
	}

	start := time.Now()
	fr, err := h.Friends.SendRequest(c.Request.Context(), user, req.ToUser)
	middleware.RecordFriendOperation("send", serviceName, time.Since(start), err)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewFriendRequestDTO(fr))
}

func (h *Handlers) AcceptFriendRequest(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	start := time.Now()
	fr, err := h.Friends.AcceptRequest(c.Request.Context(), id, user)
	middleware.RecordFriendOperation("accept", serviceName, time.Since(start), err)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewFriendRequestDTO(fr))
}

func (h *Handlers) RejectFriendRequest(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	start := time.Now()
	err := h.Friends.RejectRequest(c.Request.Context(), id, user)
	middleware.RecordFriendOperation("reject", serviceName, time.Since(start), err)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) GetFriends(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	start := time.Now()
	friends, err := h.Friends.ListFriends(c.Request.Context(), user)
	middleware.RecordFriendOperation("list_friends", serviceName, time.Since(start), err)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewFriendDTOs(friends))
}

func (h *Handlers) GetPendingRequests(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	start := time.Now()
	requests, err := h.Friends.ListPendingRequests(c.Request.Context(), user)
	middleware.RecordFriendOperation("list_pending", serviceName, time.Since(start), err)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewFriendRequestDTOs(requests))
}
