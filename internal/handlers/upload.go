package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/nkiryanov/videohub/internal/apperrors"
	"github.com/nkiryanov/videohub/internal/media"
)

const (
	maxUploadBytes = 10 << 20
	maxFormMemory  = 2 << 20
)

// Parse multipart form limiting whole request body size
func parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, 2*maxUploadBytes)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			return apperrors.New(apperrors.KindValidation, fmt.Sprintf("Request body is too large (maximum %d bytes)", maxBytesError.Limit))
		}
		return apperrors.New(apperrors.KindValidation, "Multipart form expected")
	}
	return nil
}

// Image file from parsed multipart form
// Returns nil if field has no file; caller has to close returned file
func formImage(r *http.Request, field string) (*media.Upload, multipart.File, error) {
	f, header, err := r.FormFile(field)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return nil, nil, nil
	case err != nil:
		return nil, nil, apperrors.New(apperrors.KindValidation, fmt.Sprintf("Invalid file in field '%s'", field))
	}

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		_ = f.Close()
		return nil, nil, apperrors.New(apperrors.KindValidation, fmt.Sprintf("File in field '%s' has to be an image", field))
	}
	if header.Size > maxUploadBytes {
		_ = f.Close()
		return nil, nil, apperrors.New(apperrors.KindValidation, fmt.Sprintf("File in field '%s' is too large (maximum %d bytes)", field, maxUploadBytes))
	}

	return &media.Upload{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        f,
	}, f, nil
}

func closeFile(f multipart.File) {
	if f != nil {
		_ = f.Close()
	}
}
