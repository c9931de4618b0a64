package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"HypothesisValidator/internal/domain"
	"HypothesisValidator/internal/infrastructure/parser"
	"HypothesisValidator/internal/usecase"
)

// Service is the orchestrator surface the handlers drive.
type Service interface {
	Validate(ctx context.Context, hypothesis, articleURL string) (domain.ValidationResult, error)
	ValidateArticle(ctx context.Context, hypothesis, articleID string) (domain.ValidationResult, error)
	UploadArticles(ctx context.Context, urls []string) (domain.UploadReport, error)
	UploadItems(ctx context.Context, items []usecase.UploadItem) (domain.UploadReport, error)
	CreateHypothesis(ctx context.Context, hypothesis string, amount int) (domain.HypothesisReport, error)
	BatchBudget(items int) time.Duration
}

// CatalogService serves the research and entity type listings.
type CatalogService interface {
	Researches(ctx context.Context, filter domain.ResearchFilter) ([]domain.Research, error)
	EntityTypes(ctx context.Context) ([]domain.EntityType, error)
}

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	_ Service        = (*usecase.Validator)(nil)
	_ CatalogService = (*usecase.Catalog)(nil)
)

const (
	healthTimeout = 3 * time.Second
	// writeSlack is added to a batch budget to cover encoding and flushing the response.
	writeSlack = 30 * time.Second
)

// Handler serves the validation API.
type Handler struct {
	svc            Service
	catalog        CatalogService
	health         Pinger
	logger         *slog.Logger
	maxUploadBytes int64
	decoder        *decoder
}

// NewHandler creates a Handler. maxUploadBytes bounds both JSON bodies and workbook uploads.
func NewHandler(svc Service, catalog CatalogService, health Pinger, maxUploadBytes int64, logger *slog.Logger) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:            svc,
		catalog:        catalog,
		health:         health,
		logger:         logger.With("component", "httpapi"),
		maxUploadBytes: maxUploadBytes,
		decoder:        newDecoder(maxUploadBytes),
	}
}

// Root is a liveness banner.
func (h *Handler) Root(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "Hypothesis Validator API is running"})
}

// Health pings the store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			h.logger.Error("health check failed", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "detail": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Validate judges one article URL against a hypothesis.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := h.decoder.decode(w, r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}

	result, err := h.svc.Validate(r.Context(), req.Hypothesis, req.ArticleURL)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, validateResponse{Result: newVerdictBody(result.Verdict)})
}

// ValidateArticle judges a stored article, addressed by id.
func (h *Handler) ValidateArticle(w http.ResponseWriter, r *http.Request) {
	var req validateArticleRequest
	if err := h.decoder.decode(w, r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}

	result, err := h.svc.ValidateArticle(r.Context(), req.Hypothesis, req.ArticleID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, validateResponse{Result: newVerdictBody(result.Verdict)})
}

// UploadArticles ingests a JSON list of URLs. Per-URL failures are reported, not returned as errors.
func (h *Handler) UploadArticles(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := h.decoder.decode(w, r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.extendWriteDeadline(w, len(req.ArticleURLs))
	report, err := h.svc.UploadArticles(r.Context(), req.ArticleURLs)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newUploadResponse(report))
}

// UploadExcel ingests the URL column of an uploaded .xlsx workbook (multipart field "file").
// Rows without a URL are reported as failed by row number.
func (h *Handler) UploadExcel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, h.logger, fmt.Errorf("parse upload: %w", errUploadTooLarge))
			return
		}
		respondError(w, h.logger, domain.Invalid("parse multipart form: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, h.logger, domain.Invalid("file field is required"))
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".xlsx") {
		respondError(w, h.logger, domain.Invalid("only .xlsx workbooks are supported, got %q", header.Filename))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("read upload: %w", err))
		return
	}
	rows, err := parser.ReadWorkbook(data)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	items := make([]usecase.UploadItem, 0, len(rows))
	var missing []string
	for _, row := range rows {
		if row.URL == "" {
			missing = append(missing, fmt.Sprintf("row %d", row.Row))
			continue
		}
		items = append(items, usecase.UploadItem{URL: row.URL, Title: row.Title})
	}

	h.extendWriteDeadline(w, len(items))
	report, err := h.svc.UploadItems(r.Context(), items)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	report.Failed += len(missing)
	report.FailedURLs = append(report.FailedURLs, missing...)
	respondJSON(w, http.StatusOK, newUploadResponse(report))
}

// CreateHypothesis discovers articles for a hypothesis and validates each of them.
func (h *Handler) CreateHypothesis(w http.ResponseWriter, r *http.Request) {
	var req createHypothesisRequest
	if err := h.decoder.decode(w, r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.extendWriteDeadline(w, req.ArticlesAmount)
	report, err := h.svc.CreateHypothesis(r.Context(), req.Hypothesis, req.ArticlesAmount)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newCreateHypothesisResponse(report))
}

// Researches lists every research.
func (h *Handler) Researches(w http.ResponseWriter, r *http.Request) {
	h.listResearches(w, r, domain.ResearchFilter{})
}

// SearchResearches filters researches by the primary_item and secondary_item query parameters.
func (h *Handler) SearchResearches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.listResearches(w, r, domain.ResearchFilter{
		PrimaryItem:   q.Get("primary_item"),
		SecondaryItem: q.Get("secondary_item"),
	})
}

func (h *Handler) listResearches(w http.ResponseWriter, r *http.Request, filter domain.ResearchFilter) {
	researches, err := h.catalog.Researches(r.Context(), filter)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newResearchListResponse(researches))
}

// EntityTypes lists every entity type.
func (h *Handler) EntityTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.catalog.EntityTypes(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newEntityTypeListResponse(types))
}

// extendWriteDeadline moves the write deadline past the worst case for a batch of items.
// Writers without deadline support are left alone.
func (h *Handler) extendWriteDeadline(w http.ResponseWriter, items int) {
	budget := h.svc.BatchBudget(items)
	if budget <= 0 {
		return
	}
	err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(budget + writeSlack))
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("extend write deadline", "error", err)
	}
}
