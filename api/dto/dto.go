// Package dto holds the JSON shapes served by the HTTP API.
package dto

import (
	"time"

	"socialgraph/models"
	"socialgraph/services"
)

type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SendFriendRequest struct {
	ToUser int64 `json:"to_user" binding:"required"`
}

type MessageDTO struct {
	Message string `json:"message"`
}

type TokenDTO struct {
	Token string `json:"token"`
}

type UserDTO struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func NewUserDTO(u *models.User) UserDTO {
	return UserDTO{ID: u.ID, Name: u.Name, Email: u.Email}
}

func NewUserDTOs(users []models.User) []UserDTO {
	out := make([]UserDTO, 0, len(users))
	for i := range users {
		out = append(out, NewUserDTO(&users[i]))
	}
	return out
}

// FriendDTO is the listFriends element
type FriendDTO struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func NewFriendDTOs(users []models.User) []FriendDTO {
	out := make([]FriendDTO, 0, len(users))
	for _, u := range users {
		out = append(out, FriendDTO{ID: u.ID, Email: u.Email, Name: u.Name})
	}
	return out
}

type FriendRequestDTO struct {
	ID        int64     `json:"id"`
	FromUser  int64     `json:"from_user"`
	ToUser    int64     `json:"to_user"`
	CreatedAt time.Time `json:"created_at"`
	Accepted  bool      `json:"accepted"`
	Status    string    `json:"status"`
}

func NewFriendRequestDTO(r *models.FriendRequest) FriendRequestDTO {
	return FriendRequestDTO{
		ID:        r.ID,
		FromUser:  r.FromUserID,
		ToUser:    r.ToUserID,
		CreatedAt: r.CreatedAt.UTC(),
		Accepted:  r.IsAccepted(),
		Status:    string(r.Status),
	}
}

func NewFriendRequestDTOs(requests []models.FriendRequest) []FriendRequestDTO {
	out := make([]FriendRequestDTO, 0, len(requests))
	for i := range requests {
		out = append(out, NewFriendRequestDTO(&requests[i]))
	}
	return out
}

// UserPageDTO is one page of a name search. Next and Previous are page
// numbers, null at either end.
type UserPageDTO struct {
	Count    int64     `json:"count"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Next     *int      `json:"next"`
	Previous *int      `json:"previous"`
	Results  []UserDTO `json:"results"`
}

func NewUserPageDTO(p *services.UserPage) UserPageDTO {
	out := UserPageDTO{
		Count:    p.Count,
		Page:     p.Page,
		PageSize: p.PageSize,
		Results:  NewUserDTOs(p.Users),
	}
	if p.HasNext() {
		next := p.Page + 1
		out.Next = &next
	}
	if p.HasPrevious() {
		prev := p.Page - 1
		out.Previous = &prev
	}
	return out
}
