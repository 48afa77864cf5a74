package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"emergency-service/internal/alerts"
	"emergency-service/internal/logging"
	"emergency-service/internal/models"
	"emergency-service/internal/realtime"
)

// AlertService is the slice of the alert lifecycle the HTTP layer needs.
type AlertService interface {
	Create(ctx context.Context, originatorID int64, kind models.AlertKind, message string, loc models.Location) (*models.Alert, int, error)
	CreateTest(ctx context.Context, originatorID int64) (*models.Alert, error)
	Get(ctx context.Context, alertID string, viewerID int64) (*models.Alert, error)
	ListForCircle(ctx context.Context, viewerID int64, status string, limit, offset int) ([]models.Alert, error)
	ListMine(ctx context.Context, userID int64, status string, limit, offset int) ([]models.Alert, error)
	RecordResponse(ctx context.Context, alertID string, responderID int64, text, responseType string, eta *time.Time) (int, error)
	Resolve(ctx context.Context, alertID string, requesterID int64, note string) error
	Cancel(ctx context.Context, alertID string, requesterID int64) error
	Deliveries(ctx context.Context, alertID string, viewerID int64) ([]models.NotificationRecord, error)
	Stats(ctx context.Context, userID int64, days int) (models.AlertStats, error)
}

type Handler struct {
	svc    AlertService
	hub    *realtime.Hub
	logger *logging.Logger
}

func NewHandler(svc AlertService, hub *realtime.Hub, logger *logging.Logger) *Handler {
	return &Handler{svc: svc, hub: hub, logger: logger}
}

type createAlertRequest struct {
	Kind     string          `json:"kind" binding:"required"`
	Message  string          `json:"message" binding:"omitempty,max=500"`
	Location models.Location `json:"location"`
}

func (h *Handler) CreateAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for alert: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	userID := currentUser(c)
	alert, notified, err := h.svc.Create(c.Request.Context(), userID, models.AlertKind(req.Kind), req.Message, req.Location)
	if err != nil && !errors.Is(err, alerts.ErrNoEmergencyContacts) {
		h.writeError(c, err)
		return
	}

	resp := gin.H{
		"alert_id":          alert.ID,
		"priority":          alert.Priority,
		"contacts_notified": notified,
	}
	if errors.Is(err, alerts.ErrNoEmergencyContacts) {
		resp["warning"] = "No emergency contacts configured; nobody was notified"
	}

	h.logger.Infof("Created alert %s for user %d, notified %d contacts", alert.ID, userID, notified)
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) CreateTestAlert(c *gin.Context) {
	userID := currentUser(c)
	alert, err := h.svc.CreateTest(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Infof("Created test alert %s for user %d", alert.ID, userID)
	c.JSON(http.StatusCreated, gin.H{
		"alert_id":          alert.ID,
		"is_test_alert":     true,
		"contacts_notified": 0,
	})
}

func (h *Handler) GetAlert(c *gin.Context) {
	alert, err := h.svc.Get(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alertView(alert, currentUser(c)))
}

func (h *Handler) ListCircleAlerts(c *gin.Context) {
	status := c.DefaultQuery("status", string(models.StatusActive))
	limit, offset := pagination(c)
	list, err := h.svc.ListForCircle(c.Request.Context(), currentUser(c), status, limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": listView(list, currentUser(c)), "count": len(list)})
}

func (h *Handler) ListMyAlerts(c *gin.Context) {
	status := c.DefaultQuery("status", "")
	limit, offset := pagination(c)
	list, err := h.svc.ListMine(c.Request.Context(), currentUser(c), status, limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": listView(list, currentUser(c)), "count": len(list)})
}

type respondRequest struct {
	Text             string     `json:"text" binding:"required,max=300"`
	ResponseType     string     `json:"response_type"`
	EstimatedArrival *time.Time `json:"estimated_arrival"`
}

func (h *Handler) RespondToAlert(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for response: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	alertID := c.Param("id")
	count, err := h.svc.RecordResponse(c.Request.Context(), alertID, currentUser(c), req.Text, req.ResponseType, req.EstimatedArrival)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Infof("Recorded response to alert %s from user %d", alertID, currentUser(c))
	c.JSON(http.StatusOK, gin.H{"alert_id": alertID, "response_count": count})
}

type resolveRequest struct {
	Note string `json:"note" binding:"omitempty,max=500"`
}

func (h *Handler) ResolveAlert(c *gin.Context) {
	// Resolution note is optional, so an empty body is allowed.
	var req resolveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Errorf("Invalid request body for resolve: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	alertID := c.Param("id")
	if err := h.svc.Resolve(c.Request.Context(), alertID, currentUser(c), req.Note); err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Infof("Resolved alert %s by user %d", alertID, currentUser(c))
	c.JSON(http.StatusOK, gin.H{"alert_id": alertID, "status": models.StatusResolved})
}

func (h *Handler) CancelAlert(c *gin.Context) {
	alertID := c.Param("id")
	if err := h.svc.Cancel(c.Request.Context(), alertID, currentUser(c)); err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Infof("Cancelled alert %s by user %d", alertID, currentUser(c))
	c.JSON(http.StatusOK, gin.H{"alert_id": alertID, "status": models.StatusCancelled})
}

func (h *Handler) ListDeliveries(c *gin.Context) {
	records, err := h.svc.Deliveries(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": records, "count": len(records)})
}

func (h *Handler) GetStats(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid days parameter"})
		return
	}

	stats, err := h.svc.Stats(c.Request.Context(), currentUser(c), days)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeWS upgrades the connection and parks it on the hub until the client
// hangs up.
func (h *Handler) ServeWS(c *gin.Context) {
	userID := currentUser(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade for user %d failed: %v", userID, err)
		return
	}

	if !h.hub.Add(userID, conn) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections"))
		conn.Close()
		return
	}
	go func() {
		defer func() {
			h.hub.Remove(userID, conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// alertView adds the derived lifecycle fields clients render alongside the
// stored alert.
func alertView(a *models.Alert, viewerID int64) gin.H {
	now := time.Now()
	return gin.H{
		"alert":          a,
		"response_count": a.ResponseCount(),
		"time_elapsed":   a.TimeElapsed(now).String(),
		"is_overdue":     a.IsOverdue(now),
		"has_responded":  a.HasResponseFrom(viewerID),
		"can_respond":    a.Status == models.StatusActive && a.OriginatorID != viewerID,
	}
}

func listView(list []models.Alert, viewerID int64) []gin.H {
	views := make([]gin.H, 0, len(list))
	for i := range list {
		views = append(views, alertView(&list[i], viewerID))
	}
	return views
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, alerts.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many alerts, please wait before sending another"})
	case errors.Is(err, alerts.ErrInvalidKind),
		errors.Is(err, alerts.ErrInvalidResponseType),
		errors.Is(err, alerts.ErrSelfResponse):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, alerts.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
	case errors.Is(err, alerts.ErrNotOriginator),
		errors.Is(err, alerts.ErrNotTrustCircleMember):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, alerts.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "Alert is no longer active"})
	default:
		h.logger.Errorf("Request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
