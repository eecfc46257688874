// Package upload is the client side of the ingestion flow: local
// validation, the HTTP transport with progress reporting, and the state
// tracker that drives CLI feedback.
package upload

import (
	"fmt"
	"strings"

	"github.com/dvmax/mediaforge/internal/domain"
	"github.com/google/uuid"
)

// UploadJob is one asset the client intends to ingest.
type UploadJob struct {
	ID          string
	Data        []byte
	Filename    string
	ContentType string
	Title       string
	Description string
	Kind        string
}

func NewJob(data []byte, filename, title string) UploadJob {
	return UploadJob{
		ID:       uuid.NewString(),
		Data:     data,
		Filename: filename,
		Title:    title,
		Kind:     domain.KindImage,
	}
}

// ValidateJob runs the same gates the server applies, in the same order,
// so a hopeless upload never reaches the network.
func ValidateJob(job UploadJob, maxBytes int64) error {
	if len(job.Data) == 0 {
		return domain.NewError(domain.CodeMissingFile, "please select a file to upload")
	}
	if maxBytes > 0 && int64(len(job.Data)) > maxBytes {
		return domain.NewError(
			domain.CodeFileTooLarge,
			fmt.Sprintf("file size must be less than %dMB", maxBytes/1024/1024),
		)
	}
	if strings.TrimSpace(job.Title) == "" {
		return domain.NewError(domain.CodeMissingTitle, "please provide a title")
	}
	return nil
}
