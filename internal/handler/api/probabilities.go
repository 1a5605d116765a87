package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"CoinOdds/internal/domain/models"
	domrepo "CoinOdds/internal/domain/repository"
	"CoinOdds/internal/usecase"
	xhttp "CoinOdds/pkg/http"
	"CoinOdds/pkg/http/middleware"
	xlogger "CoinOdds/pkg/logger"
	"CoinOdds/pkg/ratelimit"
)

// ProbabilityHandler serves calculation triggers and published results.
type ProbabilityHandler struct {
	logger  *xlogger.Logger
	calc    usecase.Runner
	safe    usecase.Runner
	store   domrepo.ProbabilityStore
	archive domrepo.RunArchive
	limiter *ratelimit.Limiter
	hub     *Hub
}

// NewProbabilityHandler wires the endpoints. archive and hub may be nil.
func NewProbabilityHandler(
	logger *xlogger.Logger,
	calc, safe usecase.Runner,
	store domrepo.ProbabilityStore,
	archive domrepo.RunArchive,
	limiter *ratelimit.Limiter,
	hub *Hub,
) *ProbabilityHandler {
	return &ProbabilityHandler{
		logger:  logger,
		calc:    calc,
		safe:    safe,
		store:   store,
		archive: archive,
		limiter: limiter,
		hub:     hub,
	}
}

func (h *ProbabilityHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api/probabilities")
	g.GET("", h.Latest)
	g.GET("/history", h.History)

	var mw []echo.MiddlewareFunc
	if h.limiter != nil {
		mw = append(mw, middleware.RateLimit(h.limiter))
	}
	g.POST("/calculate", h.Calculate, mw...)
	g.POST("/calculate-safe", h.CalculateSafe, mw...)

	if h.hub != nil {
		e.GET("/ws/probabilities", h.hub.Serve)
	}
}

func (h *ProbabilityHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// Calculate runs one batch and commits it only if every check passes.
func (h *ProbabilityHandler) Calculate(c echo.Context) error {
	return h.run(c, h.calc, "calculate")
}

// CalculateSafe runs the batch with retries and may answer from the result cache.
func (h *ProbabilityHandler) CalculateSafe(c echo.Context) error {
	return h.run(c, h.safe, "calculate-safe")
}

func (h *ProbabilityHandler) run(c echo.Context, r usecase.Runner, op string) error {
	req := &models.CalculateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	summary, err := r.Run(c.Request().Context(), upper(req.Symbols))
	switch {
	case err == nil:
		return xhttp.SuccessResponse(c, summary)
	case usecase.IsValidation(err) && summary != nil:
		h.logger.Warn(op+" rejected", xlogger.Strings("errors", summary.ValidationErrors))
		return xhttp.BadRequestResponse(c, summary)
	case errors.Is(err, usecase.ErrUnknownSymbol):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}

	h.logger.Error(op+" failed", xlogger.Error(err))
	if summary != nil {
		summary.Error = err.Error()
		return xhttp.DataResponse(c, http.StatusInternalServerError, summary)
	}
	return xhttp.AppErrorResponse(c, err)
}

// Latest returns the newest committed row per symbol.
func (h *ProbabilityHandler) Latest(c echo.Context) error {
	req := &models.LatestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)

	rows, err := h.store.Latest(c.Request().Context(), symbol)
	if err != nil {
		h.logger.Error("latest probabilities", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if len(rows) == 0 && symbol != "" {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no probabilities for %s", symbol))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// History lists archived rows for one symbol, newest first.
func (h *ProbabilityHandler) History(c echo.Context) error {
	if h.archive == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("run archive is not configured"))
	}
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.archive.History(c.Request().Context(), strings.ToUpper(req.Symbol), req.Limit)
	if err != nil {
		h.logger.Error("probability history", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func upper(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return out
}
