package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"resource-management-service/internal/core"
	"resource-management-service/internal/middleware"
	"resource-management-service/internal/platform/logger"
	"resource-management-service/internal/platform/memory"
	"resource-management-service/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// MockEventProducer for testing
type MockEventProducer struct {
	mock.Mock
}

func (m *MockEventProducer) Publish(ctx context.Context, event core.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventProducer) PublishBatch(ctx context.Context, events []core.Event, batchSize int) error {
	args := m.Called(ctx, events, batchSize)
	return args.Error(0)
}

func (m *MockEventProducer) Close() error {
	return nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

const testSecret = "test-secret"

func setupTestRouter(t *testing.T, auth func(http.Handler) http.Handler) (*chi.Mux, *memory.Repository, *MockEventProducer) {
	t.Helper()
	repo := memory.NewRepository()
	producer := new(MockEventProducer)
	producer.On("Publish", mock.Anything, mock.Anything).Return(nil)
	producer.On("PublishBatch", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	log := logger.NewNop()
	svc := service.NewResourceService(repo, producer, log)
	health := NewHealthHandler(map[string]Pinger{"storage": repo})
	return NewRouter(NewHandler(svc, log), health, auth), repo, producer
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createBody() map[string]interface{} {
	return map[string]interface{}{
		"type":        "METERING_POINT",
		"countryCode": "EE",
		"location": map[string]string{
			"streetAddress": "Viru 1",
			"city":          "Tallinn",
			"postalCode":    "10111",
			"countryCode":   "EE",
		},
		"characteristics": []map[string]string{
			{"code": "CONS1", "type": "CONSUMPTION_TYPE", "value": "RESIDENTIAL"},
		},
	}
}

func createResource(t *testing.T, router http.Handler) core.ResourceSnapshot {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, basePath, createBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out core.ResourceSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandler_Create(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		router, _, producer := setupTestRouter(t, nil)

		rec := doJSON(t, router, http.MethodPost, basePath, createBody(), nil)

		require.Equal(t, http.StatusCreated, rec.Code)
		var out core.ResourceSnapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.NotEqual(t, uuid.Nil, out.ID)
		assert.Equal(t, int64(0), out.Version)
		assert.Equal(t, basePath+"/"+out.ID.String(), rec.Header().Get("Location"))
		assert.Equal(t, `"0"`, rec.Header().Get("ETag"))
		producer.AssertNumberOfCalls(t, "Publish", 1)
	})

	t.Run("validation error lists fields", func(t *testing.T) {
		router, _, _ := setupTestRouter(t, nil)
		body := createBody()
		body["countryCode"] = "est"
		delete(body, "location")

		rec := doJSON(t, router, http.MethodPost, basePath, body, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, "VALIDATION_ERROR", resp.Code)
		assert.Equal(t, basePath, resp.Path)
		require.Len(t, resp.Details, 2)
		assert.Equal(t, "countryCode", resp.Details[0].Field)
		assert.Equal(t, "location", resp.Details[1].Field)
	})

	t.Run("duplicate characteristic", func(t *testing.T) {
		router, repo, _ := setupTestRouter(t, nil)
		body := createBody()
		body["characteristics"] = []map[string]string{
			{"code": "DUP01", "type": "CONSUMPTION_TYPE", "value": "A"},
			{"code": "DUP01", "type": "CONSUMPTION_TYPE", "value": "B"},
		}

		rec := doJSON(t, router, http.MethodPost, basePath, body, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, "DUPLICATE_CHARACTERISTIC", resp.Code)
		assert.Contains(t, resp.Message, "DUP01")
		count, _ := repo.Count(context.Background())
		assert.Zero(t, count)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		router, _, _ := setupTestRouter(t, nil)

		rec := doJSON(t, router, http.MethodPost, basePath, "{not json", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_REQUEST", decodeError(t, rec).Code)
	})
}

func TestHandler_Get(t *testing.T) {
	router, _, _ := setupTestRouter(t, nil)
	created := createResource(t, router)

	t.Run("found", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, basePath+"/"+created.ID.String(), nil, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var out core.ResourceSnapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, created.ID, out.ID)
		assert.Len(t, out.Characteristics, 1)
		assert.Equal(t, `"0"`, rec.Header().Get("ETag"))
	})

	t.Run("not found", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, basePath+"/"+uuid.New().String(), nil, nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "RESOURCE_NOT_FOUND", decodeError(t, rec).Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, basePath+"/not-a-uuid", nil, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_List(t *testing.T) {
	router, _, _ := setupTestRouter(t, nil)
	for i := 0; i < 3; i++ {
		createResource(t, router)
	}
	fi := createBody()
	fi["countryCode"] = "FI"
	fi["type"] = "CONNECTION_POINT"
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, basePath, fi, nil).Code)

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantTotal int64
		wantLen   int
	}{
		{"all", "", http.StatusOK, 4, 4},
		{"by country", "?countryCode=EE", http.StatusOK, 3, 3},
		{"by type", "?type=CONNECTION_POINT", http.StatusOK, 1, 1},
		{"by both", "?countryCode=FI&type=METERING_POINT", http.StatusOK, 0, 0},
		{"paged", "?page=1&size=3&sort=countryCode,asc", http.StatusOK, 4, 1},
		{"bad country", "?countryCode=fin", http.StatusBadRequest, 0, 0},
		{"bad sort", "?sort=name", http.StatusBadRequest, 0, 0},
		{"bad size", "?size=-1", http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodGet, basePath+tt.query, nil, nil)

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}
			var page core.Page[core.ResourceSnapshot]
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
			assert.Equal(t, tt.wantTotal, page.TotalElements)
			assert.Len(t, page.Content, tt.wantLen)
		})
	}
}

func TestHandler_Update(t *testing.T) {
	newLocation := map[string]interface{}{
		"location": map[string]string{
			"streetAddress": "Rüütli 2",
			"city":          "Tartu",
			"postalCode":    "51007",
			"countryCode":   "EE",
		},
	}

	t.Run("with matching If-Match", func(t *testing.T) {
		router, _, _ := setupTestRouter(t, nil)
		created := createResource(t, router)

		rec := doJSON(t, router, http.MethodPut, basePath+"/"+created.ID.String(), newLocation,
			map[string]string{"If-Match": `"0"`})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out core.ResourceSnapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, "Tartu", out.Location.City)
		assert.Equal(t, int64(1), out.Version)
		assert.Len(t, out.Characteristics, 1)
		assert.Equal(t, `"1"`, rec.Header().Get("ETag"))
	})

	t.Run("stale If-Match", func(t *testing.T) {
		router, repo, _ := setupTestRouter(t, nil)
		created := createResource(t, router)
		require.Equal(t, http.StatusOK,
			doJSON(t, router, http.MethodPut, basePath+"/"+created.ID.String(), map[string]interface{}{}, nil).Code)

		rec := doJSON(t, router, http.MethodPut, basePath+"/"+created.ID.String(), newLocation,
			map[string]string{"If-Match": "0"})

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "CONCURRENT_UPDATE", decodeError(t, rec).Code)
		stored, err := repo.FindByID(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Tallinn", stored.Location.City)
	})

	t.Run("immutable fields rejected", func(t *testing.T) {
		router, _, _ := setupTestRouter(t, nil)
		created := createResource(t, router)

		rec := doJSON(t, router, http.MethodPut, basePath+"/"+created.ID.String(),
			map[string]interface{}{"countryCode": "FI"}, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, "VALIDATION_ERROR", resp.Code)
		require.Len(t, resp.Details, 1)
		assert.Equal(t, "countryCode", resp.Details[0].Field)
	})

	t.Run("malformed If-Match", func(t *testing.T) {
		router, _, _ := setupTestRouter(t, nil)
		created := createResource(t, router)

		rec := doJSON(t, router, http.MethodPut, basePath+"/"+created.ID.String(), newLocation,
			map[string]string{"If-Match": "abc"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		router, _, _ := setupTestRouter(t, nil)

		rec := doJSON(t, router, http.MethodPut, basePath+"/"+uuid.New().String(), newLocation, nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_Delete(t *testing.T) {
	router, _, producer := setupTestRouter(t, nil)
	created := createResource(t, router)

	rec := doJSON(t, router, http.MethodDelete, basePath+"/"+created.ID.String(), nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, basePath+"/"+created.ID.String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, basePath+"/"+created.ID.String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	producer.AssertNumberOfCalls(t, "Publish", 2)
}

func TestHandler_ExportAll(t *testing.T) {
	router, _, producer := setupTestRouter(t, nil)
	createResource(t, router)
	createResource(t, router)

	rec := doJSON(t, router, http.MethodPost, basePath+"/export-all", nil, nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var out ExportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 2, out.TotalResources)
	assert.NotEqual(t, uuid.Nil, out.JobID)
	producer.AssertNumberOfCalls(t, "PublishBatch", 1)
}

func TestHandler_Auth(t *testing.T) {
	router, _, _ := setupTestRouter(t, middleware.JWTAuth([]byte(testSecret)))

	t.Run("reads stay open", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, basePath, nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("writes require a token", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, basePath, createBody(), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "operator",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		signed, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)

		rec := doJSON(t, router, http.MethodPost, basePath, createBody(),
			map[string]string{"Authorization": "Bearer " + signed})

		assert.Equal(t, http.StatusCreated, rec.Code)
	})
}

func TestHandler_RequestLogCarriesSubject(t *testing.T) {
	observed, logs := observer.New(zapcore.DebugLevel)
	log := &logger.Logger{SugaredLogger: zap.New(observed).Sugar()}
	producer := new(MockEventProducer)
	svc := service.NewResourceService(memory.NewRepository(), producer, logger.NewNop())
	router := NewRouter(NewHandler(svc, log), NewHealthHandler(nil), middleware.JWTAuth([]byte(testSecret)))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "operator",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	body := createBody()
	body["countryCode"] = "est"
	rec := doJSON(t, router, http.MethodPost, basePath, body,
		map[string]string{"Authorization": "Bearer " + signed})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	rejected := logs.FilterMessage("request rejected").All()
	require.Len(t, rejected, 1)
	fields := rejected[0].ContextMap()
	assert.Equal(t, "operator", fields["subject"])
	assert.Equal(t, basePath, fields["path"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestHealthHandler(t *testing.T) {
	t.Run("live", func(t *testing.T) {
		router, _, _ := setupTestRouter(t, nil)

		rec := doJSON(t, router, http.MethodGet, "/health/live", nil, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ready reports failing dependency", func(t *testing.T) {
		h := NewHealthHandler(map[string]Pinger{"storage": failingPinger{}})
		rec := httptest.NewRecorder()

		h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Contains(t, resp.Services["storage"], "connection refused")
	})
}

func TestParseIfMatch(t *testing.T) {
	tests := []struct {
		header  string
		want    *int64
		wantErr bool
	}{
		{header: ""},
		{header: "3", want: ptr(3)},
		{header: `"3"`, want: ptr(3)},
		{header: `W/"12"`, want: ptr(12)},
		{header: "*", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := parseIfMatch(tt.header)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func ptr(v int64) *int64 { return &v }
