package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExportFormat enumerates supported export file formats.
type ExportFormat string

const (
	ExportFormatXLSX ExportFormat = "XLSX"
	ExportFormatCSV  ExportFormat = "CSV"
)

// ExportJobStatus captures lifecycle state for an export job.
type ExportJobStatus string

const (
	ExportJobStatusPending   ExportJobStatus = "PENDING"
	ExportJobStatusRunning   ExportJobStatus = "RUNNING"
	ExportJobStatusCompleted ExportJobStatus = "COMPLETED"
	ExportJobStatusFailed    ExportJobStatus = "FAILED"
	ExportJobStatusCancelled ExportJobStatus = "CANCELLED"
)

// ExportJob mirrors sample export job state for dashboards and workers. The
// filter is snapshotted at enqueue time so later edits never change what a
// running job exports.
type ExportJob struct {
	ID           uuid.UUID       `json:"id"`
	Format       ExportFormat    `json:"format"`
	Filter       SampleFilter    `json:"filter"`
	RowsExported int             `json:"rows_exported"`
	FilePath     *string         `json:"file_path,omitempty"`
	FileMimeType *string         `json:"file_mime_type,omitempty"`
	FileByteSize *int64          `json:"file_byte_size,omitempty"`
	Status       ExportJobStatus `json:"status"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewExportJob creates a pending export job for the given filter
func NewExportJob(format ExportFormat, f SampleFilter) ExportJob {
	now := time.Now()
	return ExportJob{
		ID:         uuid.New(),
		Format:     format,
		Filter:     f,
		Status:     ExportJobStatusPending,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
}

// WithStatus returns a new job with updated status
func (j ExportJob) WithStatus(status ExportJobStatus) ExportJob {
	out := j
	out.Status = status
	out.UpdatedAt = time.Now()
	return out
}
