package handlers

import (
	"net/http"

	"socialgraph/api/dto"
	apperr "socialgraph/pkg/errors"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.BadRequest("email and password are required"))
		return
	}
	if _, err := h.Auth.Register(c.Request.Context(), req.Email, req.Password, req.Name); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.MessageDTO{Message: "user registered"})
}

func (h *Handlers) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.BadRequest("email and password are required"))
		return
	}
	token, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.TokenDTO{Token: token})
}

func (h *Handlers) Logout(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.Auth.Logout(c.Request.Context(), user.ID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
