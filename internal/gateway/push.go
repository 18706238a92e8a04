package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bizmatters/mission-dispatch/internal/models"
)

// WebSubscriptionRequest mirrors the browser PushSubscription JSON
type WebSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

// UnsubscribeWebRequest identifies a browser subscription to forget
type UnsubscribeWebRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeviceRequest registers a native push token
type DeviceRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform" binding:"required,oneof=android ios"`
}

// UnregisterDeviceRequest identifies a native push token to forget
type UnregisterDeviceRequest struct {
	Token string `json:"token" binding:"required"`
}

// SubscribeWebPush godoc
// @Summary Register a browser push subscription
// @Tags push
// @Accept json
// @Param request body WebSubscriptionRequest true "PushSubscription"
// @Success 204
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /push/subscribe [post]
func (h *Handler) SubscribeWebPush(c *gin.Context) {
	var req WebSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid subscription")
		return
	}
	err := h.deps.Store.SaveTarget(c.Request.Context(), models.WebTarget{
		UserID:   actor(c).UserID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UnsubscribeWebPush godoc
// @Summary Remove a browser push subscription
// @Tags push
// @Accept json
// @Param request body UnsubscribeWebRequest true "Subscription endpoint"
// @Success 204
// @Security BearerAuth
// @Router /push/subscribe [delete]
func (h *Handler) UnsubscribeWebPush(c *gin.Context) {
	var req UnsubscribeWebRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	target := models.WebTarget{UserID: actor(c).UserID, Endpoint: req.Endpoint}
	if err := h.deps.Store.RemoveTarget(c.Request.Context(), target); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RegisterDevice godoc
// @Summary Register a mobile push token
// @Tags push
// @Accept json
// @Param request body DeviceRequest true "Device token"
// @Success 204
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /push/devices [post]
func (h *Handler) RegisterDevice(c *gin.Context) {
	var req DeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid device")
		return
	}
	err := h.deps.Store.SaveTarget(c.Request.Context(), models.MobileTarget{
		UserID:   actor(c).UserID,
		Token:    req.Token,
		Platform: req.Platform,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UnregisterDevice godoc
// @Summary Remove a mobile push token
// @Tags push
// @Accept json
// @Param request body UnregisterDeviceRequest true "Device token"
// @Success 204
// @Security BearerAuth
// @Router /push/devices [delete]
func (h *Handler) UnregisterDevice(c *gin.Context) {
	var req UnregisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	target := models.MobileTarget{UserID: actor(c).UserID, Token: req.Token}
	if err := h.deps.Store.RemoveTarget(c.Request.Context(), target); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
