package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/arcflux/reeltime/internal/api/auth"
	"github.com/arcflux/reeltime/internal/hub"
	"github.com/arcflux/reeltime/internal/ratelimit"
	"github.com/arcflux/reeltime/internal/store"
	"github.com/arcflux/reeltime/pkg/logger"
)

var wsLog = logger.Get("ProgressSocket")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ProgressController upgrades a connection to a websocket and streams
// internal/hub messages for one task until it reaches a terminal state or
// the client disconnects. Grounded on the teacher's
// internal/http/websocket handler - same upgrade-then-pump shape, narrowed
// from a broadcast-everything socket to one task's progress per connection.
type ProgressController struct {
	hub   *hub.Hub
	store *store.Store
}

func NewProgressController(h *hub.Hub, st *store.Store) *ProgressController {
	return &ProgressController{hub: h, store: st}
}

func (c *ProgressController) SetRoutes(ec *echo.Echo, authProvider *auth.Provider, _ *ratelimit.Limiter) {
	ec.GET("/ws/progress/:id", c.watch, authProvider.RequireAuth)
}

func (c *ProgressController) watch(ec echo.Context) error {
	caller, _ := auth.GetAuthenticatedUser(ec)
	taskID, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}

	task, err := c.store.GetTask(taskID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	if task.OwnerID != caller.UserID {
		return echo.NewHTTPError(http.StatusForbidden, "task belongs to another user")
	}

	conn, err := upgrader.Upgrade(ec.Response(), ec.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	updates := c.hub.Attach(taskID)
	defer c.hub.Detach(taskID)

	conn.SetReadDeadline(time.Now().Add(time.Minute))
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-updates:
			if !ok {
				return nil
			}
			if err := conn.WriteJSON(msg); err != nil {
				wsLog.Debugf("progress socket write failed for task %s: %v\n", taskID, err)
				return nil
			}
			if msg.Terminal() {
				return nil
			}
		case <-closed:
			return nil
		}
	}
}
