package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/genlab/seqmeta/internal/domain"
)

type jobEnvelope struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Format string `json:"format"`
	Error  string `json:"error"`
}

func doExport(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) jobEnvelope {
	t.Helper()
	var envelope jobEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope
}

func TestHandlerEnqueueReturnsPendingJob(t *testing.T) {
	s := NewService(&stubSampleRepo{}, WithExportDirectory(t.TempDir()))
	h := NewHTTPHandler(s)

	rec := doExport(t, h, http.MethodPost, "/exports", `{"format":"csv","filter":{"type":"blood"}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	job := decodeJob(t, rec)
	if job.Status != string(domain.ExportJobStatusPending) {
		t.Fatalf("expected a pending job, got %q", job.Status)
	}
	if job.Format != string(domain.ExportFormatCSV) {
		t.Fatalf("expected format to be uppercased, got %q", job.Format)
	}
	if _, err := uuid.Parse(job.ID); err != nil {
		t.Fatalf("expected a job id, got %q", job.ID)
	}
}

func TestHandlerEnqueueDefaultsToCSV(t *testing.T) {
	s := NewService(&stubSampleRepo{}, WithExportDirectory(t.TempDir()))
	h := NewHTTPHandler(s)

	rec := doExport(t, h, http.MethodPost, "/exports", `{}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if job := decodeJob(t, rec); job.Format != string(domain.ExportFormatCSV) {
		t.Fatalf("expected CSV default, got %q", job.Format)
	}
}

func TestHandlerEnqueueRejectsUnknownFormat(t *testing.T) {
	s := NewService(&stubSampleRepo{}, WithExportDirectory(t.TempDir()))
	h := NewHTTPHandler(s)

	rec := doExport(t, h, http.MethodPost, "/exports", `{"format":"pdf"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if job := decodeJob(t, rec); !strings.Contains(job.Error, "unsupported export format") {
		t.Fatalf("unexpected error %q", job.Error)
	}
}

func TestHandlerEnqueueRejectsBadOperand(t *testing.T) {
	s := NewService(&stubSampleRepo{}, WithExportDirectory(t.TempDir()))
	h := NewHTTPHandler(s)

	rec := doExport(t, h, http.MethodPost, "/exports", `{"filter":{"type":{"in":"blood"}}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a scalar membership operand, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerEnqueueRejectsMalformedBody(t *testing.T) {
	s := NewService(&stubSampleRepo{}, WithExportDirectory(t.TempDir()))
	h := NewHTTPHandler(s)

	rec := doExport(t, h, http.MethodPost, "/exports", `{"format":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if job := decodeJob(t, rec); !strings.Contains(job.Error, "invalid payload") {
		t.Fatalf("unexpected error %q", job.Error)
	}
}

func TestHandlerGetReturnsJob(t *testing.T) {
	s := NewService(&stubSampleRepo{}, WithExportDirectory(t.TempDir()))
	h := NewHTTPHandler(s)

	job, err := s.Enqueue(context.Background(), domain.ExportFormatCSV, domain.SampleFilter{})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	rec := doExport(t, h, http.MethodGet, "/exports/"+job.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeJob(t, rec); got.ID != job.ID.String() || got.Status != string(domain.ExportJobStatusPending) {
		t.Fatalf("unexpected job %+v", got)
	}
}

func TestHandlerGetUnknownJob(t *testing.T) {
	s := NewService(&stubSampleRepo{}, WithExportDirectory(t.TempDir()))
	h := NewHTTPHandler(s)

	rec := doExport(t, h, http.MethodGet, "/exports/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandlerGetRejectsMalformedID(t *testing.T) {
	s := NewService(&stubSampleRepo{}, WithExportDirectory(t.TempDir()))
	h := NewHTTPHandler(s)

	rec := doExport(t, h, http.MethodGet, "/exports/not-a-job", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if job := decodeJob(t, rec); !strings.Contains(job.Error, "invalid export identifier") {
		t.Fatalf("unexpected error %q", job.Error)
	}
}

func TestHandlerListFiltersByStatus(t *testing.T) {
	s := NewService(&stubSampleRepo{}, WithExportDirectory(t.TempDir()))
	h := NewHTTPHandler(s)

	kept, err := s.Enqueue(context.Background(), domain.ExportFormatCSV, domain.SampleFilter{})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	dropped, err := s.Enqueue(context.Background(), domain.ExportFormatCSV, domain.SampleFilter{})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := s.Cancel(dropped.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	rec := doExport(t, h, http.MethodGet, "/exports?status=pending", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var jobs []jobEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != kept.ID.String() {
		t.Fatalf("expected only the pending job, got %+v", jobs)
	}
}

func TestHandlerListRejectsBadPaging(t *testing.T) {
	s := NewService(&stubSampleRepo{}, WithExportDirectory(t.TempDir()))
	h := NewHTTPHandler(s)

	rec := doExport(t, h, http.MethodGet, "/exports?limit=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit=0, got %d", rec.Code)
	}
	if job := decodeJob(t, rec); job.Error != "limit must be a positive integer" {
		t.Fatalf("unexpected error %q", job.Error)
	}

	rec = doExport(t, h, http.MethodGet, "/exports?offset=-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a negative offset, got %d", rec.Code)
	}
	if job := decodeJob(t, rec); job.Error != "offset must be zero or positive" {
		t.Fatalf("unexpected error %q", job.Error)
	}
}

func TestHandlerCancelConflictsOnSecondCall(t *testing.T) {
	s := NewService(&stubSampleRepo{}, WithExportDirectory(t.TempDir()))
	h := NewHTTPHandler(s)

	job, err := s.Enqueue(context.Background(), domain.ExportFormatCSV, domain.SampleFilter{})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rec := doExport(t, h, http.MethodPost, "/exports/"+job.ID.String()+"/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeJob(t, rec); got.Status != string(domain.ExportJobStatusCancelled) {
		t.Fatalf("expected CANCELLED, got %q", got.Status)
	}

	rec = doExport(t, h, http.MethodPost, "/exports/"+job.ID.String()+"/cancel", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on repeat cancel, got %d", rec.Code)
	}
}

func TestHandlerDownloadBeforeCompletionConflicts(t *testing.T) {
	s := NewService(&stubSampleRepo{}, WithExportDirectory(t.TempDir()))
	h := NewHTTPHandler(s)

	job, err := s.Enqueue(context.Background(), domain.ExportFormatCSV, domain.SampleFilter{})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	rec := doExport(t, h, http.MethodGet, "/exports/files/"+job.ID.String(), "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 before completion, got %d", rec.Code)
	}
}

func TestHandlerDownloadServesCompletedFile(t *testing.T) {
	repo := &stubSampleRepo{samples: []domain.Sample{testSample(1, 9, "EX-01")}}
	s := startService(t, repo)
	h := NewHTTPHandler(s)

	job, err := s.Enqueue(context.Background(), domain.ExportFormatCSV, domain.SampleFilter{})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitForStatus(t, s, job.ID, domain.ExportJobStatusCompleted)

	rec := doExport(t, h, http.MethodGet, "/exports/files/"+job.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != mimeCSV {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "samples-") {
		t.Fatalf("unexpected disposition %q", got)
	}
	if !strings.HasPrefix(rec.Body.String(), "sample_id,") {
		t.Fatalf("expected the CSV header first, got %q", rec.Body.String())
	}
}

func TestHandlerUnknownMethod(t *testing.T) {
	s := NewService(&stubSampleRepo{}, WithExportDirectory(t.TempDir()))
	h := NewHTTPHandler(s)

	rec := doExport(t, h, http.MethodDelete, "/exports", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
