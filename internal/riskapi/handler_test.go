package riskapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/trust-ring-detector/internal/riskstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockScoreService struct {
	mock.Mock
}

func (m *MockScoreService) LatestRun(ctx context.Context) (*riskstore.Run, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*riskstore.Run), args.Error(1)
}

func (m *MockScoreService) GetProfileRisk(ctx context.Context, profileID int64) (*riskstore.ProfileScore, error) {
	args := m.Called(ctx, profileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*riskstore.ProfileScore), args.Error(1)
}

func (m *MockScoreService) ListHighRisk(ctx context.Context, minScore *float64, limit, offset int) (*HighRiskPage, error) {
	args := m.Called(ctx, minScore, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*HighRiskPage), args.Error(1)
}

func setupRouter(svc ScoreService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doRequest(r *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)

	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestHandler_GetProfileRisk(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		setup      func(m *MockScoreService)
		wantStatus int
	}{
		{
			name: "found",
			path: "/api/v1/profiles/7/risk",
			setup: func(m *MockScoreService) {
				m.On("GetProfileRisk", mock.Anything, int64(7)).Return(testScore(7, 55), nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "not found",
			path: "/api/v1/profiles/8/risk",
			setup: func(m *MockScoreService) {
				m.On("GetProfileRisk", mock.Anything, int64(8)).Return(nil, riskstore.ErrNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "store failure",
			path: "/api/v1/profiles/9/risk",
			setup: func(m *MockScoreService) {
				m.On("GetProfileRisk", mock.Anything, int64(9)).Return(nil, errors.New("db down"))
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "non-numeric id",
			path:       "/api/v1/profiles/abc/risk",
			setup:      func(m *MockScoreService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "zero id",
			path:       "/api/v1/profiles/0/risk",
			setup:      func(m *MockScoreService) {},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockScoreService)
			tt.setup(svc)

			w, body := doRequest(setupRouter(svc), tt.path)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, body["success"])
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_GetProfileRisk_Body(t *testing.T) {
	svc := new(MockScoreService)
	svc.On("GetProfileRisk", mock.Anything, int64(7)).Return(testScore(7, 55), nil)

	_, body := doRequest(setupRouter(svc), "/api/v1/profiles/7/risk")
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(7), data["profile_id"])
	assert.Equal(t, "high", data["risk_level"])
	assert.Equal(t, testRunID.String(), data["run_id"])
}

func TestHandler_GetLatestRun(t *testing.T) {
	svc := new(MockScoreService)
	svc.On("LatestRun", mock.Anything).Return(testRun(), nil).Once()
	r := setupRouter(svc)

	w, body := doRequest(r, "/api/v1/runs/latest")
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, testRunID.String(), data["id"])

	svc.On("LatestRun", mock.Anything).Return(nil, riskstore.ErrNotFound).Once()
	w, _ = doRequest(r, "/api/v1/runs/latest")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_GetHighRisk(t *testing.T) {
	svc := new(MockScoreService)
	page := &HighRiskPage{
		Run:      testRun(),
		MinScore: 50,
		Profiles: []riskstore.ProfileScore{*testScore(1, 80), *testScore(2, 60)},
		Total:    45,
	}
	svc.On("ListHighRisk", mock.Anything, mock.MatchedBy(func(v *float64) bool {
		return v != nil && *v == 50
	}), 20, 40).Return(page, nil)

	w, body := doRequest(setupRouter(svc), "/api/v1/profiles/high-risk?min_score=50&limit=20&offset=40")
	require.Equal(t, http.StatusOK, w.Code)

	data := body["data"].(map[string]interface{})
	assert.Len(t, data["profiles"], 2)
	assert.Equal(t, float64(50), data["min_score"])

	meta := body["meta"].(map[string]interface{})
	assert.Equal(t, float64(45), meta["total"])
	assert.Equal(t, float64(3), meta["total_pages"])
	svc.AssertExpectations(t)
}

func TestHandler_GetHighRisk_DefaultThreshold(t *testing.T) {
	svc := new(MockScoreService)
	svc.On("ListHighRisk", mock.Anything, (*float64)(nil), 20, 0).
		Return(&HighRiskPage{Run: testRun(), MinScore: 30}, nil)

	w, _ := doRequest(setupRouter(svc), "/api/v1/profiles/high-risk")
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestHandler_GetHighRisk_InvalidMinScore(t *testing.T) {
	svc := new(MockScoreService)

	w, body := doRequest(setupRouter(svc), "/api/v1/profiles/high-risk?min_score=150")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	errBody := body["error"].(map[string]interface{})
	fields := errBody["fields"].(map[string]interface{})
	assert.Contains(t, fields, "min_score")
	svc.AssertNotCalled(t, "ListHighRisk")
}
