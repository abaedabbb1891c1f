package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/arcflux/reeltime/internal/api/auth"
	"github.com/arcflux/reeltime/internal/coordinator"
	"github.com/arcflux/reeltime/internal/ratelimit"
	"github.com/arcflux/reeltime/internal/store"
	"github.com/arcflux/reeltime/internal/synth"
)

type TaskController struct {
	coordinator *coordinator.Coordinator
	store       *store.Store
}

func NewTaskController(co *coordinator.Coordinator, st *store.Store) *TaskController {
	return &TaskController{coordinator: co, store: st}
}

type resolutionRequest struct {
	Width           int  `json:"width"`
	Height          int  `json:"height"`
	KeepAspectRatio bool `json:"keepAspectRatio"`
}

// processRequest is one ProcessRequest as submitted to POST /api/process -
// one task is created per entry in Files.
type processRequest struct {
	Files                   []uuid.UUID        `json:"files" validate:"required,min=1"`
	Container               string             `json:"container"`
	StartTime               float64            `json:"startTime"`
	EndTime                 float64            `json:"endTime"`
	TotalDuration           float64            `json:"totalDuration"`
	VideoCodec              string             `json:"videoCodec"`
	AudioCodec              string             `json:"audioCodec"`
	VideoBitrate            string             `json:"videoBitrate"`
	AudioBitrate            string             `json:"audioBitrate"`
	Resolution              *resolutionRequest `json:"resolution"`
	UseHardwareAcceleration bool               `json:"useHardwareAcceleration"`
	Preset                  string             `json:"preset"`
}

func (c *TaskController) SetRoutes(ec *echo.Echo, authProvider *auth.Provider, _ *ratelimit.Limiter) {
	grp := ec.Group("/api", authProvider.RequireAuth)
	grp.POST("/process", c.submit)
	grp.GET("/tasks", c.list)
	grp.GET("/task-status/:id", c.get)
	grp.DELETE("/tasks/:id", c.cancel)
}

func (c *TaskController) submit(ec echo.Context) error {
	caller, _ := auth.GetAuthenticatedUser(ec)

	var req processRequest
	if err := ec.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid process request")
	}
	if len(req.Files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "files must contain at least one asset id")
	}

	var resolution *synth.Resolution
	if req.Resolution != nil {
		resolution = &synth.Resolution{
			Width:           req.Resolution.Width,
			Height:          req.Resolution.Height,
			KeepAspectRatio: req.Resolution.KeepAspectRatio,
		}
	}

	trimStart := toDuration(&req.StartTime)
	var trimEnd *time.Duration
	if req.EndTime > 0 && req.EndTime < req.TotalDuration {
		trimEnd = toDuration(&req.EndTime)
	}

	taskIDs := make([]uuid.UUID, 0, len(req.Files))
	for _, assetID := range req.Files {
		asset, err := c.store.GetAsset(assetID)
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "source asset not found: "+assetID.String())
		}
		if asset.OwnerID != caller.UserID {
			return echo.NewHTTPError(http.StatusForbidden, "asset belongs to another user")
		}

		coordReq := coordinator.Request{
			OwnerID:                 caller.UserID,
			SourceAssetID:           asset.ID,
			SourcePath:              asset.StoredPath,
			SourceDisplayName:       asset.DisplayName,
			SourceDuration:          time.Duration(req.TotalDuration * float64(time.Second)),
			VideoCodec:              req.VideoCodec,
			AudioCodec:              req.AudioCodec,
			Container:               req.Container,
			Preset:                  req.Preset,
			TrimStart:               trimStart,
			TrimEnd:                 trimEnd,
			VideoBitrate:            req.VideoBitrate,
			AudioBitrate:            req.AudioBitrate,
			Resolution:              resolution,
			UseHardwareAcceleration: req.UseHardwareAcceleration,
		}

		taskID, err := c.coordinator.Submit(ec.Request().Context(), coordReq)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		taskIDs = append(taskIDs, taskID)
	}

	return ec.JSON(http.StatusAccepted, map[string][]uuid.UUID{"taskIds": taskIDs})
}

func (c *TaskController) list(ec echo.Context) error {
	caller, _ := auth.GetAuthenticatedUser(ec)

	skip := 0
	if s := ec.QueryParam("skip"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed >= 0 {
			skip = parsed
		}
	}

	tasks, err := c.store.ListTasksByOwner(caller.UserID, 50, skip)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list tasks")
	}
	return ec.JSON(http.StatusOK, tasks)
}

func (c *TaskController) get(ec echo.Context) error {
	caller, _ := auth.GetAuthenticatedUser(ec)
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}

	task, err := c.store.GetTask(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	if task.OwnerID != caller.UserID {
		return echo.NewHTTPError(http.StatusForbidden, "task belongs to another user")
	}

	return ec.JSON(http.StatusOK, task)
}

func (c *TaskController) cancel(ec echo.Context) error {
	caller, _ := auth.GetAuthenticatedUser(ec)
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}

	task, err := c.store.GetTask(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	if task.OwnerID != caller.UserID {
		return echo.NewHTTPError(http.StatusForbidden, "task belongs to another user")
	}

	c.coordinator.Cancel(id)
	if err := c.store.DeleteTask(id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete task")
	}

	return ec.NoContent(http.StatusNoContent)
}

func toDuration(seconds *float64) *time.Duration {
	if seconds == nil {
		return nil
	}
	d := time.Duration(*seconds * float64(time.Second))
	return &d
}
