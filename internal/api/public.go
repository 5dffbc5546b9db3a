package api

import (
	"net/http"
	"strconv"

	"bustracker/internal/model"

	"github.com/gin-gonic/gin"
)

const defaultSuggestLimit = 10

func (h *Handlers) Search(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	routes, err := h.t.Matcher.Search(c.Request.Context(), from, to)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if routes == nil {
		routes = []model.MatchedRoute{}
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "routes": routes})
}

func (h *Handlers) SuggestStops(c *gin.Context) {
	limit := defaultSuggestLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondDomainError(c, model.ValidationError{Field: "limit", Msg: "must be a positive integer"})
			return
		}
		limit = n
	}
	stops, err := h.t.Matcher.SuggestStops(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stops": stops})
}

func (h *Handlers) GetSession(c *gin.Context) {
	v, err := h.t.Engine.View(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
