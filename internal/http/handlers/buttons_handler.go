// Button registry HTTP handlers.
//
// This file exposes the read-only operator endpoints over the button registry:
//   - GET /buttons            (list, paginated, optional free-text search, ETag support)
//   - GET /buttons/{id}       (one definition)
//   - GET /buttons/{id}/stats (click count, distinct users, last click)
//   - GET /stats              (bot-wide totals)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-magnet-bot/internal/domain"
	"github.com/tbourn/go-magnet-bot/internal/repo"
	"github.com/tbourn/go-magnet-bot/internal/services"
	"github.com/tbourn/go-magnet-bot/internal/telegram"
	"github.com/tbourn/go-magnet-bot/internal/utils"
)

//
// Service contracts (context-aware)
//

// ButtonReader defines the registry and ledger read operations consumed by
// HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ButtonReader interface {
	// ListPage returns a page of button definitions, newest first, with the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.ButtonDefinition, int64, error)
	// SearchButtons resolves a free-text query against titles and captions.
	SearchButtons(ctx context.Context, q string, limit int) ([]domain.ButtonDefinition, error)
	// GetButton returns one definition, or services.ErrButtonNotFound.
	GetButton(ctx context.Context, id int64) (*domain.ButtonDefinition, error)
	// ButtonDetail returns one definition with its click statistics.
	ButtonDetail(ctx context.Context, id int64) (*services.ButtonStats, error)
	// Overview returns bot-wide totals.
	Overview(ctx context.Context) (*services.Overview, error)
}

// UpdateDispatcher consumes decoded Telegram updates delivered over the
// webhook transport.
//
// Implementations must be safe for concurrent use; webhook deliveries arrive
// in parallel.
type UpdateDispatcher interface {
	// HandleUpdate routes one update through the bot. It never reports an
	// error: failures are answered to the user and logged internally.
	HandleUpdate(ctx context.Context, u *telegram.Update)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints: the operator API over the button
// registry, the Telegram webhook sink, and the QR renderer. It depends on
// abstract contracts to keep transport concerns separate from bot logic.
type Handlers struct {
	statsSvc      ButtonReader
	dispatcher    UpdateDispatcher
	webhookSecret string
}

// New constructs and returns a Handlers instance bound to the given
// dependencies. webhookSecret guards POST /telegram/webhook; an empty value
// disables the check (polling deployments never mount the route).
func New(statsSvc ButtonReader, dispatcher UpdateDispatcher, webhookSecret string) *Handlers {
	return &Handlers{statsSvc: statsSvc, dispatcher: dispatcher, webhookSecret: webhookSecret}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListButtonsResponse wraps a page of button definitions and pagination
// information.
type ListButtonsResponse struct {
	Buttons    []domain.ButtonDefinition `json:"buttons"`
	Pagination Pagination                `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// buttonIDParam parses raw as a positive button id. On failure it writes a
// 400 response and returns ok=false; the caller must return immediately.
func buttonIDParam(c *gin.Context, raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "button id must be a positive integer")
		return 0, false
	}
	return id, true
}

//
// Handlers
//

// ListButtons godoc
// @ID          listButtons
// @Summary     List registered buttons (paginated)
// @Description Returns a page of channel buttons, newest first. Pass q for a free-text search over post titles and button captions. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Buttons
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"                 example(W/\"buttons:3:1714556400\")
// @Param       q              query   string  false "Free-text search over titles and captions"  example(marketing guide)
// @Param       page           query   int     false "Page number"                                 minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"                              minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListButtonsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Security    BearerAuth
// @Router      /buttons [get]
func (h *Handlers) ListButtons(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// Free-text search: one bounded page, index rebuilt from the registry.
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		items, err := h.statsSvc.SearchButtons(ctx, q, pageSize)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
			return
		}
		totalPages := 0
		if len(items) > 0 {
			totalPages = 1
		}
		ok(c, http.StatusOK, ListButtonsResponse{
			Buttons: items,
			Pagination: Pagination{
				Page:       1,
				PageSize:   pageSize,
				Total:      int64(len(items)),
				TotalPages: totalPages,
				HasNext:    false,
			},
		})
		return
	}

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, assertOK := h.statsSvc.(*services.StatsService); assertOK {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.RegistryStats(ctx, db)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"buttons:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	// Fetch page.
	items, total, err := h.statsSvc.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := ListButtonsResponse{
		Buttons: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}

// GetButton godoc
// @ID          getButton
// @Summary     Fetch one button definition
// @Description Returns a single registered button by id, without click statistics.
// @Tags        Buttons
// @Produce     json
//
// @Param       id  path  int  true  "Button ID"  minimum(1) example(12)
//
// @Success     200  {object} domain.ButtonDefinition
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Button not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Security    BearerAuth
// @Router      /buttons/{id} [get]
func (h *Handlers) GetButton(c *gin.Context) {
	id, idOK := buttonIDParam(c, c.Param("id"))
	if !idOK {
		return
	}

	b, err := h.statsSvc.GetButton(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrButtonNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "button not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, b)
}

// GetButtonStats godoc
// @ID          getButtonStats
// @Summary     Fetch click statistics for one button
// @Description Returns the button definition together with its total clicks, distinct users, and last click time.
// @Tags        Buttons
// @Produce     json
//
// @Param       id  path  int  true  "Button ID"  minimum(1) example(12)
//
// @Success     200  {object} services.ButtonStats
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Button not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Security    BearerAuth
// @Router      /buttons/{id}/stats [get]
func (h *Handlers) GetButtonStats(c *gin.Context) {
	id, idOK := buttonIDParam(c, c.Param("id"))
	if !idOK {
		return
	}

	st, err := h.statsSvc.ButtonDetail(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrButtonNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "button not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, st)
}

// StatsOverview godoc
// @ID          statsOverview
// @Summary     Bot-wide totals
// @Description Returns registered button count, total clicks, known identities, and the most recent click.
// @Tags        Stats
// @Produce     json
//
// @Success     200  {object} services.Overview
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Security    BearerAuth
// @Router      /stats [get]
func (h *Handlers) StatsOverview(c *gin.Context) {
	ov, err := h.statsSvc.Overview(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ov)
}
