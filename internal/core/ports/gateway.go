package ports

import (
	"context"
	"io"
	"net/http"
)

// RequestOptions mirrors the fetch-style options collaborators pass in.
// Body may be nil, an io.Reader, []byte, string, or any JSON-encodable value.
type RequestOptions struct {
	Method string
	Header http.Header
	Body   any
}

// FormFile is one file part of a multipart upload.
type FormFile struct {
	Field    string
	Filename string
	Content  io.Reader
}

// UploadForm is the multipart payload of an authenticated upload.
type UploadForm struct {
	Fields map[string]string
	Files  []FormFile
}

// Gateway issues authenticated calls against the API base origin.
type Gateway interface {
	Request(ctx context.Context, path string, opts RequestOptions) (*http.Response, error)
	Upload(ctx context.Context, path string, form *UploadForm) (*http.Response, error)
}
