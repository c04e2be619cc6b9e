package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"journalread/internal/dto"
	"journalread/internal/formatter"
	"journalread/internal/model"
	"journalread/internal/service"
	"journalread/internal/util"
)

type EntryController struct {
	entryService service.EntryQueryService
	opts         formatter.Options
}

func NewEntryController(entryService service.EntryQueryService, opts formatter.Options) *EntryController {
	return &EntryController{
		entryService: entryService,
		opts:         opts,
	}
}

func RegisterEntryRoutes(router *gin.Engine, controller *EntryController) {
	router.GET("/health", controller.Health)
	v1 := router.Group("/api/v1")
	{
		v1.GET("/files", controller.ListFiles)
		v1.GET("/entries", controller.GetEntries)
	}
}

func (c *EntryController) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListFiles returns the export files available in the export directory.
func (c *EntryController) ListFiles(ctx *gin.Context) {
	resp, err := c.entryService.ListFiles(ctx.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Error listing export files")
		ctx.JSON(http.StatusInternalServerError, model.NewResponse("Failed to list export files", nil))
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// GetEntries streams records of the requested files.
//
// Query parameters: files (comma separated, required), unit, since, until,
// lines and output (default json).
func (c *EntryController) GetEntries(ctx *gin.Context) {
	req, err := parseEntryQuery(ctx, time.Now())
	if err != nil {
		ctx.JSON(http.StatusBadRequest, model.NewResponse(err.Error(), nil))
		return
	}

	mode, err := formatter.ParseOutputMode(req.Output)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, model.NewResponse(err.Error(), nil))
		return
	}
	f, err := formatter.New(mode, c.opts)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, model.NewResponse(err.Error(), nil))
		return
	}

	paths, err := c.entryService.ResolveFiles(req.Files)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFileNotFound):
			ctx.JSON(http.StatusNotFound, model.NewResponse(err.Error(), nil))
		case errors.Is(err, service.ErrInvalidFileName):
			ctx.JSON(http.StatusBadRequest, model.NewResponse(err.Error(), nil))
		default:
			log.Error().Err(err).Msg("Error resolving export files")
			ctx.JSON(http.StatusInternalServerError, model.NewResponse("Failed to resolve export files", nil))
		}
		return
	}

	ctx.Header("Content-Type", mode.ContentType())
	if mode == formatter.ModeJSONSSE {
		ctx.Header("Cache-Control", "no-cache")
	}
	ctx.Status(http.StatusOK)

	stats, err := c.entryService.StreamEntries(ctx.Request.Context(), paths, req.Filter, f, ctx.Writer)
	if err != nil {
		log.Error().
			Err(err).
			Strs("files", req.Files).
			Int("emitted", stats.Emitted).
			Str("request_id", ctx.GetString(requestIDKey)).
			Msg("Error streaming journal entries")
		if !ctx.Writer.Written() {
			ctx.Writer.Header().Del("Content-Type")
			ctx.Writer.Header().Del("Cache-Control")
			ctx.JSON(http.StatusUnprocessableEntity, model.NewResponse(err.Error(), nil))
			return
		}
		ctx.Abort()
		return
	}
	log.Debug().
		Strs("files", req.Files).
		Int("emitted", stats.Emitted).
		Int("excluded", stats.Excluded).
		Msg("Streamed journal entries")
}

func parseEntryQuery(ctx *gin.Context, now time.Time) (dto.EntryQueryRequest, error) {
	var req dto.EntryQueryRequest

	for _, name := range strings.Split(ctx.Query("files"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			req.Files = append(req.Files, name)
		}
	}
	if len(req.Files) == 0 {
		return req, errors.New("query parameter files is required")
	}

	req.Filter.Unit = ctx.Query("unit")
	if s := ctx.Query("since"); s != "" {
		t, err := util.ParseTimeFlexible(s, time.UTC, now)
		if err != nil {
			return req, fmt.Errorf("invalid since: %w", err)
		}
		req.Filter.Since = t
	}
	if s := ctx.Query("until"); s != "" {
		t, err := util.ParseTimeFlexible(s, time.UTC, now)
		if err != nil {
			return req, fmt.Errorf("invalid until: %w", err)
		}
		req.Filter.Until = t
	}
	if s := ctx.Query("lines"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return req, fmt.Errorf("invalid lines %q: must be a non-negative integer", s)
		}
		req.Filter.Limit = dto.IntPtr(n)
	}
	req.Output = ctx.DefaultQuery("output", string(formatter.ModeJSON))
	return req, nil
}
