package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yanqian/formfiller/internal/domain/autofill"
	"github.com/yanqian/formfiller/internal/domain/form"
)

// Handler wires the HTTP transport to the autofill service.
type Handler struct {
	svc    autofill.Service
	logger *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(svc autofill.Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger.With("component", "http.handler"),
	}
}

type parseRequest struct {
	URL string `json:"url" binding:"required"`
}

// Healthz reports liveness.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ParseForm fetches a form and returns its parsed structure.
func (h *Handler) ParseForm(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	parsed, err := h.svc.Parse(c.Request.Context(), req.URL)
	if err != nil {
		abortWithError(c, fromDomainError(err, "parse_failed"))
		return
	}
	c.JSON(http.StatusOK, parsed)
}

// FormSchema returns the JSON schema of the parsed form document.
func (h *Handler) FormSchema(c *gin.Context) {
	c.JSON(http.StatusOK, form.Schema())
}

// StartFill queues a fill and returns the pending run.
func (h *Handler) StartFill(c *gin.Context) {
	var req autofill.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	run, err := h.svc.Enqueue(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, fromDomainError(err, "fill_failed"))
		return
	}
	c.Header("Location", "/api/v1/fills/"+run.ID.String())
	c.JSON(http.StatusAccepted, run)
}

// GetFill returns a run and its answer log.
func (h *Handler) GetFill(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "run id must be a uuid", err))
		return
	}

	details, err := h.svc.GetRun(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, fromDomainError(err, "run_lookup_failed"))
		return
	}
	c.JSON(http.StatusOK, details)
}

// History returns the retained Q->A pairs.
func (h *Handler) History(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pairs": h.svc.History(c.Request.Context())})
}

// ClearHistory empties the Q->A cache.
func (h *Handler) ClearHistory(c *gin.Context) {
	if err := h.svc.ClearHistory(c.Request.Context()); err != nil {
		abortWithError(c, fromDomainError(err, "history_failed"))
		return
	}
	c.Status(http.StatusNoContent)
}

// Models lists the models a provider serves.
func (h *Handler) Models(c *gin.Context) {
	models, err := h.svc.Models(c.Request.Context(), c.Param("name"))
	if err != nil {
		abortWithError(c, fromDomainError(err, "models_failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
