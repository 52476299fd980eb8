package ingestion

import (
	"net/url"
	"strings"
	"unicode/utf8"

	apperrors "github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/errors"
)

const (
	maxTitleLen = 512
	maxURLLen   = 2048
	maxBodyLen  = 10 << 20 // 10 MiB of text
)

// ValidateUpload checks an upload before any state is written.
func ValidateUpload(req *UploadRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return apperrors.New(apperrors.ErrInvalidInput, 400, "title is required")
	}
	if utf8.RuneCountInString(req.Title) > maxTitleLen {
		return apperrors.Newf(apperrors.ErrInvalidInput, 400, "title exceeds %d characters", maxTitleLen)
	}

	if req.URL == "" {
		return apperrors.New(apperrors.ErrInvalidInput, 400, "url is required")
	}
	if len(req.URL) > maxURLLen {
		return apperrors.Newf(apperrors.ErrInvalidInput, 400, "url exceeds %d bytes", maxURLLen)
	}
	if strings.ContainsAny(req.URL, " \n") {
		return apperrors.New(apperrors.ErrInvalidInput, 400, "url must not contain whitespace")
	}
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return apperrors.New(apperrors.ErrInvalidInput, 400, "url must be absolute http or https")
	}

	if strings.TrimSpace(req.Body) == "" {
		return apperrors.New(apperrors.ErrInvalidInput, 400, "body is required")
	}
	if len(req.Body) > maxBodyLen {
		return apperrors.Newf(apperrors.ErrInvalidInput, 400, "body exceeds %d bytes", maxBodyLen)
	}
	return nil
}

// Tokenize splits a plain-text body into the token stream the index builder
// consumes: whitespace-separated, order and duplicates preserved. Term
// normalization happens later so the stored stream keeps the original words.
func Tokenize(body string) []string {
	return strings.Fields(body)
}
