package api

import (
	"errors"
	"io"
	"net/http"

	"bustracker/internal/model"

	"github.com/gin-gonic/gin"
)

func forbidden(c *gin.Context) {
	respondError(c, http.StatusForbidden, "not allowed to modify resources of another driver")
}

// bindOptionalJSON decodes the body into v, accepting an empty body.
func bindOptionalJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handlers) Profile(c *gin.Context) {
	uid := DriverID(c)
	claims := claimsFrom(c)
	buses, err := h.t.Registry.BusesByOwner(c.Request.Context(), uid)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if buses == nil {
		buses = []model.Bus{}
	}
	c.JSON(http.StatusOK, gin.H{
		"uid":     uid,
		"name":    claims.Name,
		"email":   claims.Email,
		"message": "Driver profile data",
		"buses":   buses,
	})
}

type locationRequest struct {
	BusID     string   `json:"busId"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (h *Handlers) UpdateLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	switch {
	case req.BusID == "":
		respondDomainError(c, model.ValidationError{Field: "busId", Msg: "is required"})
		return
	case req.Latitude == nil:
		respondDomainError(c, model.ValidationError{Field: "latitude", Msg: "is required"})
		return
	case req.Longitude == nil:
		respondDomainError(c, model.ValidationError{Field: "longitude", Msg: "is required"})
		return
	}

	ctx := c.Request.Context()
	b, err := h.t.Registry.GetBus(ctx, req.BusID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if b.OwnerID != DriverID(c) {
		forbidden(c)
		return
	}
	loc, err := h.t.Registry.UpdateLocation(ctx, b.ID, *req.Latitude, *req.Longitude)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Location updated successfully", "location": loc})
}

func (h *Handlers) DriverRoutes(c *gin.Context) {
	routes, err := h.t.Catalog.ListRoutesByOwner(c.Request.Context(), DriverID(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if routes == nil {
		routes = []model.Route{}
	}
	c.JSON(http.StatusOK, gin.H{"routes": routes})
}

type createRouteRequest struct {
	Name  string   `json:"name"`
	Stops []string `json:"stops"`
}

func (h *Handlers) CreateRoute(c *gin.Context) {
	var req createRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	r, err := h.t.Catalog.CreateRoute(c.Request.Context(), DriverID(c), req.Name, req.Stops)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *Handlers) DeleteRoute(c *gin.Context) {
	ctx := c.Request.Context()
	r, err := h.t.Catalog.GetRoute(ctx, c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if r.OwnerID != DriverID(c) {
		forbidden(c)
		return
	}
	if err := h.t.Catalog.DeleteRoute(ctx, r.ID); err != nil {
		respondDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type registerBusRequest struct {
	Number   string `json:"number"`
	Model    string `json:"model"`
	Capacity int    `json:"capacity"`
}

func (h *Handlers) RegisterBus(c *gin.Context) {
	var req registerBusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	b, err := h.t.Registry.RegisterBus(c.Request.Context(), DriverID(c), req.Number, req.Model, req.Capacity)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// ownBus loads the bus named by the :id parameter and checks that the caller
// owns it. It writes the response and returns false otherwise.
func (h *Handlers) ownBus(c *gin.Context) (model.Bus, bool) {
	b, err := h.t.Registry.GetBus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return model.Bus{}, false
	}
	if b.OwnerID != DriverID(c) {
		forbidden(c)
		return model.Bus{}, false
	}
	return b, true
}

type bindRouteRequest struct {
	RouteID string `json:"routeId"`
}

func (h *Handlers) BindRoute(c *gin.Context) {
	var req bindRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RouteID == "" {
		respondError(c, http.StatusBadRequest, "routeId is required")
		return
	}
	b, ok := h.ownBus(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	r, err := h.t.Catalog.GetRoute(ctx, req.RouteID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if r.OwnerID != DriverID(c) {
		forbidden(c)
		return
	}
	b, err = h.t.Registry.BindRoute(ctx, b.ID, r.ID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type startSessionRequest struct {
	RouteID string `json:"routeId"`
}

func (h *Handlers) StartSession(c *gin.Context) {
	var req startSessionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	b, ok := h.ownBus(c)
	if !ok {
		return
	}
	if req.RouteID == "" {
		req.RouteID = b.RouteID
	}
	s, err := h.t.Engine.StartSession(c.Request.Context(), b.ID, req.RouteID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// ownSession checks that the session named by :id is driven by the caller.
func (h *Handlers) ownSession(c *gin.Context) (model.TripSession, bool) {
	s, err := h.t.Engine.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return model.TripSession{}, false
	}
	if s.DriverID != DriverID(c) {
		forbidden(c)
		return model.TripSession{}, false
	}
	return s, true
}

func (h *Handlers) MarkArrival(c *gin.Context) {
	s, ok := h.ownSession(c)
	if !ok {
		return
	}
	s, err := h.t.Engine.MarkArrival(c.Request.Context(), s.ID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

type endSessionRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handlers) EndSession(c *gin.Context) {
	var req endSessionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	s, ok := h.ownSession(c)
	if !ok {
		return
	}
	s, err := h.t.Engine.EndSession(c.Request.Context(), s.ID, req.Confirm)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
