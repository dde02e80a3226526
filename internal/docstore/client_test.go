package docstore_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartdoc/internal/apperr"
	"smartdoc/internal/docstore"
	"smartdoc/internal/middleware"
)

func TestClient_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/document/doc-1/download", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get(docstore.HeaderServiceToken))
		assert.Equal(t, "corr-1", r.Header.Get(middleware.HeaderCorrelationID))

		w.Header().Set("Content-Type", "application/pdf; charset=binary")
		w.Header().Set("Content-Disposition", `attachment; filename="report 2024.pdf"`)
		w.Write([]byte("%PDF-1.4"))
	}))
	defer ts.Close()

	c := docstore.NewClient(ts.URL+"/", "secret", time.Second, 0)
	ctx := middleware.WithCorrelationID(context.Background(), "corr-1")

	doc, err := c.Fetch(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "report 2024.pdf", doc.Filename)
	assert.Equal(t, "application/pdf", doc.MIMEType)
	assert.Equal(t, []byte("%PDF-1.4"), doc.Data)
}

func TestClient_Fetch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, apperr.ErrNotFound},
		{"server error", http.StatusInternalServerError, apperr.ErrUpstreamUnavailable},
		{"forbidden", http.StatusForbidden, apperr.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer ts.Close()

			_, err := docstore.NewClient(ts.URL, "", time.Second, 0).Fetch(context.Background(), "x")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_Fetch_TooLarge(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 64))
	}))
	defer ts.Close()

	_, err := docstore.NewClient(ts.URL, "", time.Second, 16).Fetch(context.Background(), "x")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestClient_Fetch_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := docstore.NewClient(url, "", time.Second, 0).Fetch(context.Background(), "x")
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}
