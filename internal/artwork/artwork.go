// Package artwork holds the print files visitors upload while configuring a
// banner. Files are volatile: cart lines keep only the file name durably, and
// a Handle is valid only while the visitor's in-memory state lives.
package artwork

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/vbonduro/bannerfront/internal/domain"
)

type Store interface {
	Save(ctx context.Context, prefix, mimeType string, r io.Reader) (storageKey string, err error)
	Get(ctx context.Context, storageKey string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, storageKey string) error
}

// Handle references an uploaded file in a Store.
type Handle struct {
	Key      string
	Name     string
	MimeType string
	Size     int64
}

// DefaultMaxSize is the upload limit when none is configured.
const DefaultMaxSize = 10 * 1024 * 1024

// allowedTypes is the set of sniffed MIME types accepted for artwork.
var allowedTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

// DetectMIME sniffs the content type of data and reports whether it is an
// accepted artwork format.
func DetectMIME(data []byte) (string, bool) {
	mime := http.DetectContentType(data)
	if allowedTypes[mime] {
		return mime, true
	}
	return "", false
}

// Validate checks an upload against the type allow-list and size limit. The
// returned error is a *domain.ValidationError suitable for showing inline.
func Validate(data []byte, maxSize int64) (string, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if len(data) == 0 {
		return "", &domain.ValidationError{Field: "file", Message: "Please choose a file to upload"}
	}
	if int64(len(data)) > maxSize {
		return "", &domain.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("File size must be less than %s", humanize.IBytes(uint64(maxSize))),
		}
	}
	mime, ok := DetectMIME(data)
	if !ok {
		return "", &domain.ValidationError{Field: "file", Message: "Only JPG, PNG and PDF files are accepted"}
	}
	return mime, nil
}
