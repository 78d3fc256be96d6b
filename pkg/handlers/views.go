package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aerolake/aerolake-etl/pkg/apperrors"
	"github.com/aerolake/aerolake-etl/pkg/database"
	"github.com/aerolake/aerolake-etl/pkg/models"
	"github.com/aerolake/aerolake-etl/pkg/repositories"
	"github.com/aerolake/aerolake-etl/pkg/services"
)

// ViewsHandler serves the read-only aggregate views the reporting layer
// pulls. It never writes to the warehouse.
type ViewsHandler struct {
	sessions     services.SessionProvider
	customerRepo repositories.DimensionRepository
	airportRepo  repositories.DimensionRepository
	factRepo     repositories.FlightFactRepository
	runRepo      repositories.LoadRunRepository
	timeout      time.Duration
	logger       *zap.Logger
}

// NewViewsHandler creates a ViewsHandler.
func NewViewsHandler(
	sessions services.SessionProvider,
	customerRepo repositories.DimensionRepository,
	airportRepo repositories.DimensionRepository,
	factRepo repositories.FlightFactRepository,
	runRepo repositories.LoadRunRepository,
	timeout time.Duration,
	logger *zap.Logger,
) *ViewsHandler {
	return &ViewsHandler{
		sessions:     sessions,
		customerRepo: customerRepo,
		airportRepo:  airportRepo,
		factRepo:     factRepo,
		runRepo:      runRepo,
		timeout:      timeout,
		logger:       logger.Named("views-handler"),
	}
}

// RegisterRoutes registers the read-only view routes on the given mux.
func (h *ViewsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/dimensions/customers/current", h.CurrentCustomers)
	mux.HandleFunc("/api/dimensions/airports/current", h.CurrentAirports)
	mux.HandleFunc("/api/facts/flights/summary", h.FlightSummary)
	mux.HandleFunc("/api/runs/latest", h.LatestRun)
}

// CurrentCustomers handles GET /api/dimensions/customers/current.
func (h *ViewsHandler) CurrentCustomers(w http.ResponseWriter, r *http.Request) {
	h.serveCurrent(w, r, h.customerRepo)
}

// CurrentAirports handles GET /api/dimensions/airports/current.
func (h *ViewsHandler) CurrentAirports(w http.ResponseWriter, r *http.Request) {
	h.serveCurrent(w, r, h.airportRepo)
}

func (h *ViewsHandler) serveCurrent(w http.ResponseWriter, r *http.Request, repo repositories.DimensionRepository) {
	if r.Method != http.MethodGet {
		_ = MethodNotAllowed(w)
		return
	}

	var versions []*models.DimensionVersion
	err := h.withSession(r.Context(), func(ctx context.Context) error {
		var listErr error
		versions, listErr = repo.ListCurrent(ctx)
		return listErr
	})
	if err != nil {
		h.logger.Error("Failed to list current dimension rows",
			zap.String("dimension", repo.Name()),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "storage_error", "failed to read dimension")
		return
	}
	if versions == nil {
		versions = []*models.DimensionVersion{}
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{
		"dimension": repo.Name(),
		"count":     len(versions),
		"rows":      versions,
	}); err != nil {
		h.logger.Error("Failed to encode dimension response", zap.Error(err))
	}
}

// FlightSummary handles GET /api/facts/flights/summary.
func (h *ViewsHandler) FlightSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		_ = MethodNotAllowed(w)
		return
	}

	var summary *models.FlightMeasureSummary
	err := h.withSession(r.Context(), func(ctx context.Context) error {
		var sumErr error
		summary, sumErr = h.factRepo.Summarize(ctx)
		return sumErr
	})
	if err != nil {
		h.logger.Error("Failed to summarize flight facts", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "storage_error", "failed to summarize facts")
		return
	}

	if err := WriteJSON(w, http.StatusOK, summary); err != nil {
		h.logger.Error("Failed to encode summary response", zap.Error(err))
	}
}

// LatestRun handles GET /api/runs/latest.
func (h *ViewsHandler) LatestRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		_ = MethodNotAllowed(w)
		return
	}

	var run *models.LoadRun
	err := h.withSession(r.Context(), func(ctx context.Context) error {
		var getErr error
		run, getErr = h.runRepo.GetLatest(ctx)
		return getErr
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = ErrorResponse(w, http.StatusNotFound, "not_found", "no batch has run yet")
			return
		}
		h.logger.Error("Failed to get latest run", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "storage_error", "failed to read run journal")
		return
	}

	if err := WriteJSON(w, http.StatusOK, run); err != nil {
		h.logger.Error("Failed to encode run response", zap.Error(err))
	}
}

func (h *ViewsHandler) withSession(ctx context.Context, fn func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	scope, err := h.sessions.AcquireSession(opCtx)
	if err != nil {
		return err
	}
	defer scope.Close()

	return fn(database.SetSession(opCtx, scope))
}
