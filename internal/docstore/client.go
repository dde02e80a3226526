// Package docstore fetches uploaded documents from the document service.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"smartdoc/internal/apperr"
	"smartdoc/internal/middleware"
)

const (
	HeaderServiceToken = "x-service-token"
	DefaultTimeout     = 45 * time.Second
	DefaultMaxBytes    = 25 << 20
)

type Document struct {
	ID       string
	Filename string
	MIMEType string
	Data     []byte
}

type Client struct {
	baseURL  string
	token    string
	maxBytes int64
	http     *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration, maxBytes int64) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		maxBytes: maxBytes,
		http:     &http.Client{Timeout: timeout},
	}
}

// Fetch downloads the raw bytes of docID. A 404 maps to apperr.ErrNotFound,
// any other failure to apperr.ErrUpstreamUnavailable.
func (c *Client) Fetch(ctx context.Context, docID string) (*Document, error) {
	endpoint := fmt.Sprintf("%s/api/document/%s/download", c.baseURL, url.PathEscape(docID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build docstore request: %w", err)
	}
	if c.token != "" {
		req.Header.Set(HeaderServiceToken, c.token)
	}
	if id := middleware.GetCorrelationID(ctx); id != "unknown" {
		req.Header.Set(middleware.HeaderCorrelationID, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: docstore fetch %s: %v", apperr.ErrUpstreamTimeout, docID, err)
		}
		return nil, fmt.Errorf("%w: docstore fetch %s: %v", apperr.ErrUpstreamUnavailable, docID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: document %s", apperr.ErrNotFound, docID)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: docstore returned %d for %s", apperr.ErrUpstreamUnavailable, resp.StatusCode, docID)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read document %s: %v", apperr.ErrUpstreamUnavailable, docID, err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("%w: document %s exceeds %d bytes", apperr.ErrInvalidInput, docID, c.maxBytes)
	}

	doc := &Document{
		ID:       docID,
		Filename: filenameOf(resp.Header.Get("Content-Disposition")),
		MIMEType: mediaTypeOf(resp.Header.Get("Content-Type")),
		Data:     data,
	}
	slog.InfoContext(ctx, "document fetched", "doc_id", docID, "filename", doc.Filename, "mimetype", doc.MIMEType, "bytes", len(data))
	return doc, nil
}

func filenameOf(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func mediaTypeOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mt
}
