package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"smartdoc/internal/vector"
)

type MockCatalog struct{ mock.Mock }

func (m *MockCatalog) ListDocuments(ctx context.Context) []vector.DocumentInfo {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]vector.DocumentInfo)
}

func (m *MockCatalog) Health(ctx context.Context) vector.Health {
	return m.Called(ctx).Get(0).(vector.Health)
}

type MockFailures struct{ mock.Mock }

func (m *MockFailures) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type fixedCounts struct {
	runs, pending int
}

func (f fixedCounts) ActiveRuns() int { return f.runs }
func (f fixedCounts) Pending() int    { return f.pending }

func TestHandler_GetStats_Table(t *testing.T) {
	up := vector.Health{OK: true, Backend: "weaviate"}

	tests := []struct {
		name       string
		setupMocks func(*MockCatalog, *MockFailures)
		wantStatus int
		wantError  bool
		checkBody  func(*testing.T, map[string]interface{})
	}{
		{
			name: "Success",
			setupMocks: func(c *MockCatalog, f *MockFailures) {
				c.On("ListDocuments", mock.Anything).Return([]vector.DocumentInfo{
					{DocID: "a", Chunks: 40},
					{DocID: "b", Chunks: 60},
					{DocID: "c", Chunks: 1},
				})
				c.On("Health", mock.Anything).Return(up)
				f.On("Count", mock.Anything).Return(5, nil)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, data map[string]interface{}) {
				assert.EqualValues(t, 3, data["documents"])
				assert.EqualValues(t, 101, data["chunks"])
				assert.EqualValues(t, 33.7, data["avgChunksPerDocument"])
				assert.Equal(t, map[string]interface{}{"doc_id": "b", "chunks": float64(60)}, data["largestDocument"])
				assert.EqualValues(t, 5, data["failedJobs"])
				assert.EqualValues(t, 1, data["indexing"])
				assert.EqualValues(t, 3, data["pendingConsent"])
				assert.Equal(t, "weaviate", data["vectorBackend"])
				assert.Equal(t, true, data["vectorBackendUp"])
			},
		},
		{
			name: "Vector store unavailable",
			setupMocks: func(c *MockCatalog, f *MockFailures) {
				c.On("ListDocuments", mock.Anything).Return(nil)
				c.On("Health", mock.Anything).Return(vector.Health{Backend: "weaviate", Detail: "not ready"})
				f.On("Count", mock.Anything).Return(0, nil)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, data map[string]interface{}) {
				assert.EqualValues(t, 0, data["documents"])
				assert.EqualValues(t, 0, data["avgChunksPerDocument"])
				assert.NotContains(t, data, "largestDocument")
				assert.Equal(t, false, data["vectorBackendUp"])
			},
		},
		{
			name: "Failure ledger error",
			setupMocks: func(c *MockCatalog, f *MockFailures) {
				c.On("ListDocuments", mock.Anything).Return(nil).Maybe()
				c.On("Health", mock.Anything).Return(up).Maybe()
				f.On("Count", mock.Anything).Return(0, errors.New("db error"))
			},
			wantStatus: http.StatusInternalServerError,
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mCatalog := new(MockCatalog)
			mFailures := new(MockFailures)
			tt.setupMocks(mCatalog, mFailures)

			h := NewHandler(mCatalog, mFailures, fixedCounts{runs: 1}, fixedCounts{pending: 3})
			w := httptest.NewRecorder()

			h.GetStats(w, httptest.NewRequest("GET", "/stats", nil))

			assert.Equal(t, tt.wantStatus, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))

			if tt.wantError {
				assert.Equal(t, "INTERNAL_ERROR", body["code"])
				return
			}
			data, ok := body["data"].(map[string]interface{})
			require.True(t, ok)
			tt.checkBody(t, data)
		})
	}
}
