package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/genlab/seqmeta/internal/domain"
	"github.com/genlab/seqmeta/internal/filter"
)

// Handler exposes export job submission, status and download over HTTP.
type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/files/"):
		h.handleDownload(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/cancel"):
		h.handleCancel(w, r)
	case r.Method == http.MethodPost:
		h.handleEnqueue(w, r)
	case r.Method == http.MethodGet && trailsExports(r.URL.Path):
		h.handleList(w, r)
	case r.Method == http.MethodGet:
		h.handleGet(w, r)
	default:
		writeError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func trailsExports(path string) bool {
	return strings.HasSuffix(path, "/exports") || strings.HasSuffix(path, "/exports/")
}

// enqueuePayload is the submission body. An empty format defaults to CSV.
type enqueuePayload struct {
	Format string              `json:"format"`
	Filter domain.SampleFilter `json:"filter"`
}

func (h *Handler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload enqueuePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	format := domain.ExportFormat(strings.ToUpper(strings.TrimSpace(payload.Format)))
	if format == "" {
		format = domain.ExportFormatCSV
	}
	job, err := h.service.Enqueue(r.Context(), format, payload.Filter)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	statuses := parseStatuses(query["status"])
	limit := 20
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, errors.New("offset must be zero or positive"))
			return
		}
		offset = parsed
	}
	writeJSON(w, http.StatusOK, h.service.Jobs(statuses, limit, offset))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	jobID, err := tailID(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	job, err := h.service.Job(jobID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID, err := tailID(strings.TrimSuffix(r.URL.Path, "/cancel"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	job, err := h.service.Cancel(jobID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	jobID, err := tailID(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	job, err := h.service.Job(jobID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	file, err := h.service.OpenJobFile(job)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	defer file.Close()

	filename := filepath.Base(*job.FilePath)
	contentType := "application/octet-stream"
	if job.FileMimeType != nil && strings.TrimSpace(*job.FileMimeType) != "" {
		contentType = *job.FileMimeType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if job.FileByteSize != nil && *job.FileByteSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(*job.FileByteSize, 10))
	}
	http.ServeContent(w, r, filename, job.UpdatedAt, file)
}

// tailID parses the job id from the final path segment.
func tailID(path string) (uuid.UUID, error) {
	trimmed := strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx == -1 || idx == len(trimmed)-1 {
		return uuid.Nil, errors.New("missing export identifier")
	}
	jobID, err := uuid.Parse(trimmed[idx+1:])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid export identifier: %w", err)
	}
	return jobID, nil
}

func parseStatuses(values []string) []domain.ExportJobStatus {
	if len(values) == 0 {
		return nil
	}
	result := make([]domain.ExportJobStatus, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToUpper(strings.TrimSpace(part))
			switch domain.ExportJobStatus(trimmed) {
			case domain.ExportJobStatusPending,
				domain.ExportJobStatusRunning,
				domain.ExportJobStatusCompleted,
				domain.ExportJobStatusFailed,
				domain.ExportJobStatusCancelled:
				result = append(result, domain.ExportJobStatus(trimmed))
			}
		}
	}
	return result
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, errUnsupportedFormat),
		errors.Is(err, filter.ErrBadOperand),
		errors.Is(err, filter.ErrBadMetaKey),
		errors.Is(err, filter.ErrUnknownField):
		return http.StatusBadRequest
	case errors.Is(err, errQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, errJobNotCancellable), errors.Is(err, errJobNotReady):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
