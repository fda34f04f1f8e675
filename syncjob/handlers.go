package syncjob

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/fieldops_backend/drum"
	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/sirupsen/logrus"
)

type ConnectionStore interface {
	CreateConnection(ctx context.Context, input *models.NewConnection) (*models.Connection, error)
	GetConnection(ctx context.Context, id uint) (*models.Connection, error)
	ListConnections(ctx context.Context) ([]models.Connection, error)
	DeleteConnection(ctx context.Context, id uint) error
}

type Handlers struct {
	connections ConnectionStore
	manager     *Manager
	drums       *drum.Service
	logger      *logrus.Logger
}

func NewHandlers(connections ConnectionStore, manager *Manager, drums *drum.Service, logger *logrus.Logger) *Handlers {
	return &Handlers{connections: connections, manager: manager, drums: drums, logger: logger}
}

// Register mounts the API. guard is applied to the endpoints that start work.
func (h *Handlers) Register(r gin.IRouter, auth gin.HandlerFunc, guard gin.HandlerFunc) {
	r.GET("/healthz", HealthzHandler())
	r.POST("/pubsub/sheet-sync", PubSubPushHandler(h.manager, h.logger))

	api := r.Group("/api", auth)
	api.GET("/connections", h.ListConnectionsHandler())
	api.POST("/connections", guard, h.CreateConnectionHandler())
	api.GET("/connections/:id", h.GetConnectionHandler())
	api.DELETE("/connections/:id", guard, h.DeleteConnectionHandler())
	api.POST("/connections/:id/sync", guard, h.TriggerSyncHandler())
	api.GET("/jobs/:id", h.JobStatusHandler())
	api.GET("/drums/:number", h.DrumHandler())
	api.POST("/drums/recalculate", guard, h.RecalculateDrumsHandler())
}

func HealthzHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func connectionID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid connection id"})
		return 0, false
	}
	return uint(id), true
}

func (h *Handlers) ListConnectionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conns, err := h.connections.ListConnections(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conns == nil {
			conns = []models.Connection{}
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "connections": conns})
	}
}

func (h *Handlers) CreateConnectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewConnection
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		conn, err := h.connections.CreateConnection(c.Request.Context(), &req)
		if err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) || errors.Is(err, models.ErrInvalidSheetRef) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "connection": conn})
	}
}

func (h *Handlers) GetConnectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := connectionID(c)
		if !ok {
			return
		}
		conn, err := h.connections.GetConnection(c.Request.Context(), id)
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "connection": conn})
	}
}

func (h *Handlers) DeleteConnectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := connectionID(c)
		if !ok {
			return
		}
		err := h.connections.DeleteConnection(c.Request.Context(), id)
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func (h *Handlers) TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := connectionID(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		if _, err := h.connections.GetConnection(ctx, id); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		jobID, err := h.manager.Trigger(ctx, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"ok": true, "jobId": jobID})
	}
}

func (h *Handlers) JobStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := h.manager.Jobs().Get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "job": job})
	}
}

func (h *Handlers) DrumHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := h.drums.Lookup(c.Request.Context(), c.Param("number"))
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "drum not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "drum": d})
	}
}

// RecalculateDrumsHandler recomputes every drum. Drums that fail are listed
// and the others are still saved.
func (h *Handlers) RecalculateDrumsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		outcomes, err := h.drums.RecalculateAll(c.Request.Context())
		resp := gin.H{"ok": err == nil, "drums": len(outcomes)}
		if err != nil {
			resp["error"] = err.Error()
		}
		c.JSON(http.StatusOK, resp)
	}
}
