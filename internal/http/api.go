package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Qaquka/aatm-qaquka/internal/browse"
	"github.com/Qaquka/aatm-qaquka/internal/jobs"
	"github.com/Qaquka/aatm-qaquka/internal/packager"
	"github.com/Qaquka/aatm-qaquka/internal/push"
	"github.com/Qaquka/aatm-qaquka/internal/push/lacale"
	"github.com/Qaquka/aatm-qaquka/internal/service"
	"github.com/Qaquka/aatm-qaquka/internal/settings"
	"github.com/Qaquka/aatm-qaquka/internal/storage"
)

// SettingsStore reads and deep-merges the runtime settings document.
type SettingsStore interface {
	Get() (settings.Settings, error)
	Update(patch map[string]any) (settings.Settings, error)
}

// Previewer resolves what an upload to the remote tracker would send.
type Previewer interface {
	Preview(req push.Request) lacale.Preview
}

// CategoryLister proxies the seedbox category list.
type CategoryLister interface {
	Categories(ctx context.Context) (json.RawMessage, error)
}

// ArchiveLister lists what the archive target has stored.
type ArchiveLister interface {
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
}

// Dependencies groups the collaborators the routes dispatch to.
type Dependencies struct {
	Settings    SettingsStore
	Packager    packager.Manager
	Jobs        *jobs.Registry
	Broadcaster *jobs.Broadcaster
	Pushes      *push.Service
	Preview     Previewer
	Categories  CategoryLister
	Archive     ArchiveLister
	History     service.HistoryService
	Auth        service.AuthService
	Logger      *logrus.Logger
	// PublicDir holds the static console files served for non-API paths.
	PublicDir string
	// RequestTimeout bounds the synchronous proxy calls made on behalf of a request.
	RequestTimeout time.Duration
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	deps Dependencies
}

func NewHandler(deps Dependencies) *Handler {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 20 * time.Second
	}
	return &Handler{deps: deps}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestIDMiddleware(), accessLogMiddleware(h.deps.Logger), corsMiddleware())

	api := router.Group("/api")
	api.Use(authMiddleware(h.deps.Auth))
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})
		api.POST("/auth/login", h.login)

		api.GET("/config", h.getConfig)
		api.POST("/config", h.updateConfig)
		api.GET("/browse", h.browse)
		api.GET("/mediainfo", h.mediainfoQuery)
		api.POST("/mediainfo", h.mediainfoBody)

		api.POST("/torrent/create", h.createTorrent)
		api.GET("/torrent/progress", h.progress)
		api.GET("/jobs/:id", h.getJob)
		api.POST("/nfo/create", h.createNFO)

		api.POST("/lacale/preview", h.lacalePreview)
		api.POST("/lacale/upload", h.pushTo(lacale.Name))
		api.GET("/qbit/categories", h.qbitCategories)
		api.POST("/torrent/push", h.pushTo("qbit"))
		api.POST("/transmission/push", h.pushTo("transmission"))
		api.POST("/deluge/push", h.pushTo("deluge"))
		api.POST("/archive/push", h.pushTo("archive"))
		api.GET("/archive/objects", h.archiveObjects)

		api.GET("/history", h.history)
	}

	router.NoRoute(h.static())
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}
	if h.deps.Auth == nil {
		writeError(c, service.ErrAuthDisabled)
		return
	}
	token, expiresAt, err := h.deps.Auth.Login(req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expiresAt": expiresAt.UTC().Format(time.RFC3339)})
}

func (h *Handler) getConfig(c *gin.Context) {
	cfg, err := h.deps.Settings.Get()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg.Redacted())
}

func (h *Handler) updateConfig(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	cfg, err := h.deps.Settings.Update(patch)
	if err != nil {
		writeError(c, err)
		return
	}
	h.deps.Logger.Info("settings updated")
	c.JSON(http.StatusOK, cfg.Redacted())
}

func (h *Handler) browse(c *gin.Context) {
	cfg, err := h.deps.Settings.Get()
	if err != nil {
		writeError(c, err)
		return
	}
	listing, err := browse.List(c.Query("path"), cfg.BrowseRoots)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

type pathRequest struct {
	Path string `json:"path"`
}

func (h *Handler) mediainfoQuery(c *gin.Context) {
	h.inspect(c, c.Query("path"))
}

func (h *Handler) mediainfoBody(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	h.inspect(c, req.Path)
}

func (h *Handler) inspect(c *gin.Context, path string) {
	target, report, err := h.deps.Packager.Inspect(c.Request.Context(), path)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": target, "report": report})
}

func (h *Handler) createTorrent(c *gin.Context) {
	var req packager.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	accepted, err := h.deps.Packager.Submit(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, accepted)
}

func (h *Handler) getJob(c *gin.Context) {
	job, err := h.deps.Jobs.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobToResponse(job))
}

func (h *Handler) createNFO(c *gin.Context) {
	var req packager.NFORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	res, err := h.deps.Packager.CreateNFO(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) lacalePreview(c *gin.Context) {
	var req push.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "preview": h.deps.Preview.Preview(req)})
}

func (h *Handler) qbitCategories(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deps.RequestTimeout)
	defer cancel()
	categories, err := h.deps.Categories.Categories(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", categories)
}

func (h *Handler) pushTo(target string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req push.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
			return
		}
		res, err := h.deps.Pushes.Push(c.Request.Context(), target, req)
		if err != nil {
			writeError(c, err)
			return
		}
		resp := gin.H{"ok": true, "target": res.Target}
		if res.Message != "" {
			resp["message"] = res.Message
		}
		if res.Details != "" {
			resp["details"] = res.Details
		}
		c.JSON(http.StatusOK, resp)
	}
}

type archiveObjectResponse struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified,omitempty"`
}

func (h *Handler) archiveObjects(c *gin.Context) {
	if h.deps.Archive == nil {
		writeError(c, fmt.Errorf("%w: archive", push.ErrDisabled))
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deps.RequestTimeout)
	defer cancel()
	objects, err := h.deps.Archive.List(ctx, c.Query("prefix"))
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]archiveObjectResponse, 0, len(objects))
	for _, obj := range objects {
		item := archiveObjectResponse{Key: obj.Key, Size: obj.Size}
		if obj.LastModified != nil {
			item.LastModified = obj.LastModified.UTC().Format(time.RFC3339)
		}
		resp = append(resp, item)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) history(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = v
	}
	entries, err := h.deps.History.Recent(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
