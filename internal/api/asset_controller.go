// Controllers in this file wire the asset-storage domain (store, upload,
// probe, workspace) into HTTP routes, following the same per-resource
// controller split as the teacher's internal/api/*Controller.go.
package api

import (
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/arcflux/reeltime/internal/api/auth"
	"github.com/arcflux/reeltime/internal/probe"
	"github.com/arcflux/reeltime/internal/ratelimit"
	"github.com/arcflux/reeltime/internal/store"
	"github.com/arcflux/reeltime/internal/upload"
	"github.com/arcflux/reeltime/internal/workspace"
	"github.com/arcflux/reeltime/pkg/logger"
)

var assetLog = logger.Get("AssetController")

type AssetController struct {
	store         *store.Store
	workspace     *workspace.Workspace
	prober        *probe.Prober
	maxUploadSize int64
}

func NewAssetController(st *store.Store, ws *workspace.Workspace, prober *probe.Prober, maxUploadSize int64) *AssetController {
	return &AssetController{store: st, workspace: ws, prober: prober, maxUploadSize: maxUploadSize}
}

func (c *AssetController) SetRoutes(ec *echo.Echo, authProvider *auth.Provider, _ *ratelimit.Limiter) {
	grp := ec.Group("/api", authProvider.RequireAuth)
	grp.POST("/upload", c.upload)
	grp.GET("/files", c.list)
	grp.GET("/file-info", c.fileInfo)
	grp.GET("/download-file/:id", c.download)
	grp.DELETE("/delete-file", c.delete)
}

func (c *AssetController) upload(ec echo.Context) error {
	caller, _ := auth.GetAuthenticatedUser(ec)

	fileHeader, err := ec.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing file field")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to open uploaded file")
	}
	defer src.Close()

	assetID := uuid.New()
	destPath, err := c.workspace.UploadPath(caller.UserID, assetID, filepath.Ext(fileHeader.Filename))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to allocate upload destination")
	}

	result, err := upload.SaveAndSniff(src, destPath, c.maxUploadSize)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	asset := store.Asset{
		ID:          assetID,
		OwnerID:     caller.UserID,
		DisplayName: fileHeader.Filename,
		StoredPath:  destPath,
		Status:      string(store.AssetStatusUploaded),
		SizeBytes:   result.SizeBytes,
		CreatedAt:   time.Now(),
	}
	if err := c.store.CreateAsset(asset); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to persist asset")
	}

	return ec.JSON(http.StatusCreated, asset)
}

func (c *AssetController) list(ec echo.Context) error {
	caller, _ := auth.GetAuthenticatedUser(ec)

	limit, offset := pagination(ec)
	assets, err := c.store.ListAssetsByOwner(caller.UserID, limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list assets")
	}
	return ec.JSON(http.StatusOK, assets)
}

// ownedAsset resolves the asset named by the filename/id query or path
// param and verifies ec's caller owns it, or returns the echo.HTTPError to
// send back.
func (c *AssetController) ownedAsset(ec echo.Context, rawID string) (*store.Asset, error) {
	caller, _ := auth.GetAuthenticatedUser(ec)

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid asset id")
	}

	asset, err := c.store.GetAsset(id)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "asset not found")
	}
	if asset.OwnerID != caller.UserID {
		return nil, echo.NewHTTPError(http.StatusForbidden, "asset belongs to another user")
	}

	return asset, nil
}

func (c *AssetController) fileInfo(ec echo.Context) error {
	asset, err := c.ownedAsset(ec, ec.QueryParam("filename"))
	if err != nil {
		return err
	}

	info, err := c.prober.Probe(asset.StoredPath)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to probe asset")
	}

	return ec.JSON(http.StatusOK, info)
}

func (c *AssetController) download(ec echo.Context) error {
	asset, err := c.ownedAsset(ec, ec.Param("id"))
	if err != nil {
		return err
	}

	return ec.Attachment(asset.StoredPath, asset.DisplayName)
}

func (c *AssetController) delete(ec echo.Context) error {
	asset, err := c.ownedAsset(ec, ec.QueryParam("filename"))
	if err != nil {
		return err
	}

	if err := c.store.DeleteTasksReferencingAsset(asset.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to clean up tasks referencing asset")
	}
	if err := workspace.Remove(asset.StoredPath); err != nil {
		assetLog.Warnf("failed to remove asset file %s: %v\n", asset.StoredPath, err)
	}
	if err := c.store.DeleteAsset(asset.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete asset")
	}

	return ec.NoContent(http.StatusNoContent)
}

func pagination(ec echo.Context) (limit, offset int) {
	limit = 50
	offset = 0
	if l := ec.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if o := ec.QueryParam("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
