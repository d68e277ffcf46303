package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/genlab/seqmeta/internal/domain"
	"github.com/genlab/seqmeta/internal/filter"
	"github.com/genlab/seqmeta/internal/idformat"
	"github.com/genlab/seqmeta/internal/repository"
)

var (
	// ErrJobNotFound reports an export job id no worker has ever seen.
	ErrJobNotFound = errors.New("export job not found")

	errUnsupportedFormat = errors.New("unsupported export format")
	errQueueFull         = errors.New("export queue is full")
	errJobNotRunnable    = errors.New("export job is no longer runnable")
	errJobNotCancellable = errors.New("export job can no longer be cancelled")
	errJobNotReady       = errors.New("export is not completed")
)

const (
	mimeCSV  = "text/csv"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Service runs asynchronous sample exports. Jobs are queued in memory,
// drained by a bounded set of workers, and written page by page so an export
// never holds more than one page of rows at a time. Job state lives in
// memory only; a restart forgets unfinished jobs.
type Service struct {
	samples repository.SampleRepository

	exportDir  string
	jobTimeout time.Duration
	pageSize   int
	workers    int
	now        func() time.Time

	mu   sync.RWMutex
	jobs map[uuid.UUID]domain.ExportJob

	queue chan uuid.UUID
	wg    sync.WaitGroup

	workerCancels sync.Map // map[uuid.UUID]context.CancelFunc
}

type Option func(*Service)

func WithExportDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.exportDir = filepath.Clean(dir)
		}
	}
}

func WithJobTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.jobTimeout = timeout
		}
	}
}

func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithWorkerCount sets how many exports may run at once.
func WithWorkerCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueueSize bounds how many jobs may wait for a worker.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queue = make(chan uuid.UUID, n)
		}
	}
}

func NewService(samples repository.SampleRepository, opts ...Option) *Service {
	service := &Service{
		samples:    samples,
		exportDir:  filepath.Join(os.TempDir(), "seqmeta-exports"),
		jobTimeout: 30 * time.Minute,
		pageSize:   1000,
		workers:    2,
		now:        time.Now,
		jobs:       make(map[uuid.UUID]domain.ExportJob),
		queue:      make(chan uuid.UUID, 64),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Start launches the worker pool. Workers exit when ctx is cancelled; call
// Stop afterwards to wait for in-flight exports to wind down.
func (s *Service) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-s.queue:
					s.process(ctx, id)
				}
			}
		}()
	}
}

// Stop blocks until every worker has exited.
func (s *Service) Stop() {
	s.wg.Wait()
}

// Enqueue validates the filter, records a pending job and hands it to the
// worker pool. The filter is compiled once up front so a malformed filter
// fails the submission rather than the background job.
func (s *Service) Enqueue(ctx context.Context, format domain.ExportFormat, f domain.SampleFilter) (domain.ExportJob, error) {
	switch format {
	case domain.ExportFormatCSV, domain.ExportFormatXLSX:
	default:
		return domain.ExportJob{}, fmt.Errorf("%w %q", errUnsupportedFormat, format)
	}
	if _, _, err := f.Model().Compile(filter.CompileOptions{}); err != nil {
		return domain.ExportJob{}, fmt.Errorf("validate filter: %w", err)
	}

	job := domain.NewExportJob(format, f)
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	select {
	case s.queue <- job.ID:
	default:
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		return domain.ExportJob{}, errQueueFull
	}
	log.Printf("[Export] queued job %s (format=%s)", job.ID, job.Format)
	return job, nil
}

// Job returns a snapshot of one export job.
func (s *Service) Job(id uuid.UUID) (domain.ExportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ExportJob{}, ErrJobNotFound
	}
	return job, nil
}

// Jobs lists export jobs, newest first, optionally restricted by status.
func (s *Service) Jobs(statuses []domain.ExportJobStatus, limit, offset int) []domain.ExportJob {
	wanted := make(map[domain.ExportJobStatus]bool, len(statuses))
	for _, status := range statuses {
		wanted[status] = true
	}

	s.mu.RLock()
	out := make([]domain.ExportJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if len(wanted) > 0 && !wanted[job.Status] {
			continue
		}
		out = append(out, job)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].EnqueuedAt.After(out[j].EnqueuedAt)
	})
	if offset >= len(out) {
		return []domain.ExportJob{}
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// Cancel stops a pending or running job. A pending job never starts; a
// running job's context is cancelled and the worker abandons its output.
func (s *Service) Cancel(id uuid.UUID) (domain.ExportJob, error) {
	if err := s.markCancelled(id); err != nil {
		return domain.ExportJob{}, err
	}
	if cancel, ok := s.workerCancels.LoadAndDelete(id); ok {
		if fn, okCast := cancel.(context.CancelFunc); okCast {
			fn()
		}
	}
	return s.Job(id)
}

// OpenJobFile opens the completed export file for streaming to the client.
func (s *Service) OpenJobFile(job domain.ExportJob) (*os.File, error) {
	if job.Status != domain.ExportJobStatusCompleted {
		return nil, errJobNotReady
	}
	if job.FilePath == nil || strings.TrimSpace(*job.FilePath) == "" {
		return nil, errors.New("export file is unavailable")
	}
	file, err := os.Open(*job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	return file, nil
}

func (s *Service) process(ctx context.Context, id uuid.UUID) {
	job, err := s.Job(id)
	if err != nil {
		return
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if s.jobTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.jobTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	s.workerCancels.Store(id, cancel)
	defer func() {
		cancel()
		s.workerCancels.Delete(id)
	}()
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[Export] panic while processing job %s: %v", id, rec)
			s.markFailed(id, fmt.Sprintf("panic: %v", rec))
		}
	}()

	if err := s.run(runCtx, job); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			log.Printf("[Export] job %s cancelled", id)
		case errors.Is(err, errJobNotRunnable):
			log.Printf("[Export] job %s not runnable, skipping", id)
		default:
			s.markFailed(id, truncateError(err))
			log.Printf("[Export] job %s failed: %v", id, err)
		}
	}
}

func (s *Service) run(ctx context.Context, job domain.ExportJob) error {
	if err := s.markRunning(job.ID); err != nil {
		return err
	}
	if err := s.ensureExportDirectory(); err != nil {
		return err
	}

	tempPath := filepath.Join(s.exportDir, job.ID.String()+".partial")
	writer, err := s.newRowWriter(job.Format, tempPath)
	if err != nil {
		return err
	}
	cleanup := true
	defer func() {
		if cleanup {
			_ = writer.Close()
			_ = os.Remove(tempPath)
		}
	}()

	if err := writer.WriteRow(exportHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	rowsExported := 0
	offset := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		samples, _, err := s.samples.Query(ctx, job.Filter, repository.Page{
			Limit:  s.pageSize,
			Offset: offset,
		})
		if err != nil {
			return fmt.Errorf("list samples: %w", err)
		}
		if len(samples) == 0 {
			break
		}
		for _, sample := range samples {
			if err := writer.WriteRow(exportRow(sample)); err != nil {
				return fmt.Errorf("write sample row: %w", err)
			}
			rowsExported++
		}
		s.updateProgress(job.ID, rowsExported)
		if len(samples) < s.pageSize {
			break
		}
		offset += s.pageSize
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize export file: %w", err)
	}
	cleanup = false

	finalPath := filepath.Join(s.exportDir, finalFileName(job))
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("promote export file: %w", err)
	}
	info, err := os.Stat(finalPath)
	if err != nil {
		return fmt.Errorf("stat export file: %w", err)
	}

	size := info.Size()
	mime := mimeCSV
	if job.Format == domain.ExportFormatXLSX {
		mime = mimeXLSX
	}
	s.markCompleted(job.ID, rowsExported, finalPath, mime, size)
	log.Printf("[Export] job %s completed (rows=%d path=%s)", job.ID, rowsExported, finalPath)
	return nil
}

func (s *Service) ensureExportDirectory() error {
	if strings.TrimSpace(s.exportDir) == "" {
		return errors.New("export directory is not configured")
	}
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return fmt.Errorf("ensure export directory: %w", err)
	}
	return nil
}

// Job state transitions. RUNNING is only reachable from PENDING, so a job
// cancelled while queued is skipped instead of exported.

func (s *Service) markRunning(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != domain.ExportJobStatusPending {
		return errJobNotRunnable
	}
	now := s.now()
	job.Status = domain.ExportJobStatusRunning
	job.StartedAt = &now
	job.UpdatedAt = now
	s.jobs[id] = job
	return nil
}

func (s *Service) updateProgress(id uuid.UUID, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != domain.ExportJobStatusRunning {
		return
	}
	job.RowsExported = rows
	job.UpdatedAt = s.now()
	s.jobs[id] = job
}

func (s *Service) markCompleted(id uuid.UUID, rows int, path, mime string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != domain.ExportJobStatusRunning {
		return
	}
	now := s.now()
	job.Status = domain.ExportJobStatusCompleted
	job.RowsExported = rows
	job.FilePath = &path
	job.FileMimeType = &mime
	job.FileByteSize = &size
	job.CompletedAt = &now
	job.UpdatedAt = now
	s.jobs[id] = job
}

func (s *Service) markFailed(id uuid.UUID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	switch job.Status {
	case domain.ExportJobStatusCompleted, domain.ExportJobStatusCancelled:
		return
	}
	now := s.now()
	job.Status = domain.ExportJobStatusFailed
	job.ErrorMessage = &message
	job.CompletedAt = &now
	job.UpdatedAt = now
	s.jobs[id] = job
}

func (s *Service) markCancelled(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	switch job.Status {
	case domain.ExportJobStatusPending, domain.ExportJobStatusRunning:
	default:
		return fmt.Errorf("%w: status %s", errJobNotCancellable, job.Status)
	}
	now := s.now()
	job.Status = domain.ExportJobStatusCancelled
	job.CompletedAt = &now
	job.UpdatedAt = now
	s.jobs[id] = job
	return nil
}

// exportHeaders are the columns of a sample export, in order.
var exportHeaders = []string{
	"sample_id", "external_id", "project_id", "participant_id",
	"type", "active", "meta", "created_at", "updated_at",
}

func exportRow(s domain.Sample) []string {
	participant := ""
	if s.ParticipantID != nil {
		participant = idformat.Participant(*s.ParticipantID)
	}
	return []string{
		idformat.Sample(s.ID),
		s.ExternalID,
		strconv.Itoa(s.ProjectID),
		participant,
		s.Type,
		formatValue(s.Active),
		formatValue(s.Meta),
		formatValue(s.CreatedAt),
		formatValue(s.UpdatedAt),
	}
}

func finalFileName(job domain.ExportJob) string {
	ext := "csv"
	if job.Format == domain.ExportFormatXLSX {
		ext = "xlsx"
	}
	return fmt.Sprintf("samples-%s.%s", job.ID.String(), ext)
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case map[string]any:
		if len(v) == 0 {
			return ""
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	const maxLen = 512
	msg := err.Error()
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}
