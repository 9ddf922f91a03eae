package handlers

import (
	"net/http"

	"socialgraph/api/dto"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) UserGet(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	user, err := h.Users.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewUserDTO(user))
}

// UserSearch answers an exact email hit with the user itself and anything
// else with a page of name matches.
func (h *Handlers) UserSearch(c *gin.Context) {
	page, ok := intQuery(c, "page", 1)
	if !ok {
		return
	}
	pageSize, ok := intQuery(c, "page_size", 0)
	if !ok {
		return
	}

	res, err := h.Search.Search(c.Request.Context(), c.Query("search_term"), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	if res.User != nil {
		c.JSON(http.StatusOK, dto.NewUserDTO(res.User))
		return
	}
	c.JSON(http.StatusOK, dto.NewUserPageDTO(res.Page))
}
