// internal/api/handler.go
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"vda5050-bridge/internal/adapter"
	"vda5050-bridge/internal/fleet"
	"vda5050-bridge/internal/models"
	"vda5050-bridge/internal/repository"
	"vda5050-bridge/internal/utils"
)

// Vehicle is the adapter as seen by the API.
type Vehicle interface {
	Snapshot() *adapter.Snapshot
	EnqueueCommand(cmd fleet.MovementCommand, horizon []fleet.Step) (*models.Order, error)
	SendInstantActions(actions []models.Action) (*models.InstantActions, error)
	RequestFactsheet() error
}

// OrderHistory looks up the orders sent for an order id.
type OrderHistory interface {
	OrdersByID(ctx context.Context, orderID string) ([]repository.OrderRecord, error)
}

// CommandRequest is the body of POST /vehicle/commands.
type CommandRequest struct {
	Command fleet.MovementCommand `json:"command"`
	Horizon []fleet.Step          `json:"horizon"`
}

// InstantActionsRequest is the body of POST /vehicle/instant-actions.
type InstantActionsRequest struct {
	Actions []models.Action `json:"actions"`
}

// OrderEntry is one sent order update.
type OrderEntry struct {
	OrderUpdateID uint32        `json:"orderUpdateId"`
	HeaderID      uint32        `json:"headerId"`
	SentAt        time.Time     `json:"sentAt"`
	Order         *models.Order `json:"order"`
}

// Handler serves the vehicle API.
type Handler struct {
	vehicle Vehicle
	history OrderHistory
}

// NewHandler creates a handler. history may be nil when persistence is off.
func NewHandler(vehicle Vehicle, history OrderHistory) *Handler {
	return &Handler{vehicle: vehicle, history: history}
}

// NewServer returns an echo instance with all routes under /api/v1.
func NewServer(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestLogger())

	h.Register(e.Group("/api/v1"))
	return e
}

// Register adds the routes to g.
func (h *Handler) Register(g *echo.Group) {
	g.GET("/health", h.HealthCheck)
	g.GET("/vehicle", h.GetVehicle)
	g.POST("/vehicle/commands", h.EnqueueCommand)
	g.POST("/vehicle/instant-actions", h.SendInstantActions)
	g.GET("/vehicle/orders/:orderId", h.GetOrderHistory)
	g.GET("/vehicle/factsheet", h.GetFactsheet)
	g.POST("/vehicle/factsheet", h.RequestFactsheet)
}

// HealthCheck reports that the service is up.
func (h *Handler) HealthCheck(c echo.Context) error {
	data := map[string]interface{}{
		"service":   "vda5050-bridge",
		"timestamp": time.Now().Unix(),
	}
	return c.JSON(http.StatusOK, SuccessResponse("Service is healthy", data))
}

// GetVehicle returns the latest snapshot of the vehicle.
func (h *Handler) GetVehicle(c echo.Context) error {
	return c.JSON(http.StatusOK, SuccessResponse("Vehicle state retrieved successfully", h.vehicle.Snapshot()))
}

// EnqueueCommand sends a movement command to the vehicle.
func (h *Handler) EnqueueCommand(c echo.Context) error {
	var req CommandRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("Invalid command body", err)
	}
	o, err := h.vehicle.EnqueueCommand(req.Command, req.Horizon)
	if err != nil {
		return commandError(err)
	}
	return c.JSON(http.StatusAccepted, SuccessResponse("Order sent", o))
}

// SendInstantActions sends instant actions to the vehicle.
func (h *Handler) SendInstantActions(c echo.Context) error {
	var req InstantActionsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("Invalid instant actions body", err)
	}
	msg, err := h.vehicle.SendInstantActions(req.Actions)
	if err != nil {
		return commandError(err)
	}
	return c.JSON(http.StatusAccepted, SuccessResponse("Instant actions sent", msg))
}

// GetOrderHistory lists every update sent for an order id.
func (h *Handler) GetOrderHistory(c echo.Context) error {
	orderID := c.Param("orderId")
	if orderID == "" {
		return NewBadRequestError("orderId parameter is required")
	}
	if h.history == nil {
		return newAppError(http.StatusServiceUnavailable, "Order history is disabled", nil)
	}

	records, err := h.history.OrdersByID(c.Request().Context(), orderID)
	if err != nil {
		return newAppError(http.StatusInternalServerError, "Failed to load order history", err)
	}
	if len(records) == 0 {
		return NewNotFoundError("No orders found for " + orderID)
	}
	entries := make([]OrderEntry, 0, len(records))
	for _, r := range records {
		o, err := r.Order()
		if err != nil {
			return newAppError(http.StatusInternalServerError, "Stored order is corrupt", err)
		}
		entries = append(entries, OrderEntry{OrderUpdateID: r.OrderUpdateID, HeaderID: r.HeaderID, SentAt: r.SentAt, Order: o})
	}
	return c.JSON(http.StatusOK, SuccessResponse("Order history retrieved successfully", ListResponse{Items: entries, Count: len(entries)}))
}

// GetFactsheet returns the last factsheet the vehicle reported.
func (h *Handler) GetFactsheet(c echo.Context) error {
	f := h.vehicle.Snapshot().Factsheet
	if f == nil {
		return NewNotFoundError("No factsheet received yet")
	}
	return c.JSON(http.StatusOK, SuccessResponse("Factsheet retrieved successfully", f))
}

// RequestFactsheet asks the vehicle to publish its factsheet again.
func (h *Handler) RequestFactsheet(c echo.Context) error {
	if err := h.vehicle.RequestFactsheet(); err != nil {
		return commandError(err)
	}
	return c.JSON(http.StatusAccepted, SuccessResponse("Factsheet requested", nil))
}

func requestLogger() echo.MiddlewareFunc {
	log := utils.Logger.WithFields(logrus.Fields{"component": "http"})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			log.WithFields(logrus.Fields{
				"method":   c.Request().Method,
				"uri":      c.Request().RequestURI,
				"status":   c.Response().Status,
				"duration": time.Since(start).String(),
			}).Info("request")
			return nil
		}
	}
}
