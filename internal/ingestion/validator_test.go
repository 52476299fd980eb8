package ingestion

import (
	"errors"
	"strings"
	"testing"

	apperrors "github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/errors"
)

func validUpload() *UploadRequest {
	return &UploadRequest{
		Title:    "A Study of Month Shards",
		URL:      "https://example.com/papers/shards",
		Uploader: "researcher",
		Body:     "month shards partition the index by upload time",
	}
}

func TestValidateUploadAccepts(t *testing.T) {
	if err := ValidateUpload(validUpload()); err != nil {
		t.Fatalf("ValidateUpload: %v", err)
	}
}

func TestValidateUploadRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*UploadRequest)
	}{
		{"empty title", func(r *UploadRequest) { r.Title = "  " }},
		{"long title", func(r *UploadRequest) { r.Title = strings.Repeat("t", maxTitleLen+1) }},
		{"empty url", func(r *UploadRequest) { r.URL = "" }},
		{"relative url", func(r *UploadRequest) { r.URL = "/papers/shards" }},
		{"ftp url", func(r *UploadRequest) { r.URL = "ftp://example.com/f" }},
		{"url with newline", func(r *UploadRequest) { r.URL = "https://example.com/\na" }},
		{"long url", func(r *UploadRequest) { r.URL = "https://example.com/" + strings.Repeat("p", maxURLLen) }},
		{"empty body", func(r *UploadRequest) { r.Body = "\n \t" }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := validUpload()
			c.mutate(req)
			if err := ValidateUpload(req); !errors.Is(err, apperrors.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestTokenizePreservesOrderAndDuplicates(t *testing.T) {
	got := Tokenize("  the Cat\tsat on the   mat\n")
	want := []string{"the", "Cat", "sat", "on", "the", "mat"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}
