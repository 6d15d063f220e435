package v1

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0ritam/XAI-Dashboard/internal/artifacts"
	"github.com/0ritam/XAI-Dashboard/internal/explain"
	"github.com/0ritam/XAI-Dashboard/internal/inference"
	"github.com/0ritam/XAI-Dashboard/internal/metrics"
	"github.com/0ritam/XAI-Dashboard/internal/middleware"
)

const testArtifactsDir = "../../internal/artifacts/testdata"

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	bundle, err := artifacts.Load(testArtifactsDir, logger)
	require.NoError(t, err)

	encoder := inference.NewEncoderAdapter(bundle.Encoders, inference.PolicyFirstClass, logger)
	assembler := inference.NewAssembler(encoder, bundle.FeatureNames, logger)
	predictor := inference.NewPredictor(bundle.Model, bundle.ClassesInOrder(), len(bundle.FeatureNames))

	surrogate := explain.NewLocalSurrogate(bundle.Model.PredictProbabilities, bundle.Stats, explain.DefaultSurrogateConfig())
	attributor := explain.NewTreeAttributor(bundle.Model)
	aggregator, err := explain.NewAggregator(attributor, surrogate, bundle.FeatureNames, 0, logger)
	require.NoError(t, err)

	handler := NewHandler(bundle, assembler, predictor, aggregator, nil, nil, metrics.NewServiceMetrics(), logger)

	router := gin.New()
	handler.RegisterRoutes(router, middleware.RequireReady(handler))
	return router
}

func setupUnreadyRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handler := NewHandler(nil, nil, nil, nil, nil, nil, metrics.NewServiceMetrics(), zap.NewNop())

	router := gin.New()
	handler.RegisterRoutes(router, middleware.RequireReady(handler))
	return router
}

func passStudentJSON() map[string]interface{} {
	return map[string]interface{}{
		"code_module":            "AAA",
		"code_presentation":      "2024J",
		"id_student":             11391,
		"gender":                 "M",
		"region":                 "South East Region",
		"highest_education":      "HE Qualification",
		"imd_band":               "70-80%",
		"age_band":               "35-55",
		"disability":             "N",
		"num_of_prev_attempts":   0,
		"studied_credits":        120,
		"completed_course":       true,
		"withdrawal_status":      false,
		"total_clicks":           4500,
		"avg_clicks_per_session": 45,
		"click_variability":      10,
		"total_sessions":         85,
		"active_days":            75,
		"engagement_duration":    350,
		"daily_engagement_rate":  0.75,
		"first_access_day":       5,
		"last_access_day":        180,
		"avg_assessment_score":   78,
		"score_consistency":      5,
		"total_assessments":      4,
		"first_submission":       15,
		"last_submission":        170,
		"banked_assessments":     0,
	}
}

func postJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPredict(t *testing.T) {
	router := setupRouter(t)

	w := postJSON(t, router, "/api/v1/predict", passStudentJSON())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp PredictionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "Pass", resp.Prediction)
	assert.Greater(t, resp.Confidence, 0.9)
	assert.Equal(t, 11391, resp.StudentID)
	assert.Equal(t, "1.4.2", resp.ModelVersion)
	assert.Len(t, resp.Probabilities, 4)

	var sum float64
	for _, p := range resp.Probabilities {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestPredictMissingRequiredField(t *testing.T) {
	router := setupRouter(t)

	body := passStudentJSON()
	delete(body, "total_clicks")

	w := postJSON(t, router, "/api/v1/predict", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
}

func TestPredictMalformedJSON(t *testing.T) {
	router := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/predict", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPredictUnknownRegionStillSucceeds(t *testing.T) {
	router := setupRouter(t)

	body := passStudentJSON()
	body["region"] = "Atlantis Region"

	w := postJSON(t, router, "/api/v1/predict", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp PredictionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Pass", resp.Prediction)
}

func TestExplain(t *testing.T) {
	router := setupRouter(t)

	w := postJSON(t, router, "/api/v1/explain", passStudentJSON())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ExplanationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "Pass", resp.Prediction)
	require.NotNil(t, resp.Explanation)
	assert.Empty(t, resp.Explanation.DegradedMethods)
	require.NotEmpty(t, resp.Explanation.Entries)
	assert.LessOrEqual(t, len(resp.Explanation.Entries), 10)

	for i := 1; i < len(resp.Explanation.Entries); i++ {
		assert.GreaterOrEqual(t,
			resp.Explanation.Entries[i-1].Importance,
			resp.Explanation.Entries[i].Importance,
			"entries must be ranked by importance")
	}

	for _, entry := range resp.Explanation.Entries {
		assert.Contains(t, []string{"positive", "negative"}, entry.Direction)
	}

	// No store attached, so no explanation ID is assigned
	assert.Empty(t, resp.ExplanationID)
}

func TestExplainIsDeterministic(t *testing.T) {
	router := setupRouter(t)

	first := postJSON(t, router, "/api/v1/explain", passStudentJSON())
	second := postJSON(t, router, "/api/v1/explain", passStudentJSON())

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b ExplanationResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.Explanation, b.Explanation)
}

func TestBatchPredict(t *testing.T) {
	router := setupRouter(t)

	bad := passStudentJSON()
	delete(bad, "completed_course")

	students := make([]map[string]interface{}, 0, 10)
	for i := 0; i < 9; i++ {
		s := passStudentJSON()
		s["id_student"] = 1000 + i
		students = append(students, s)
	}
	students = append(students, bad)

	w := postJSON(t, router, "/api/v1/batch-predict", map[string]interface{}{
		"students": students,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp BatchPredictionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 9, resp.SuccessCount)
	assert.Equal(t, 1, resp.ErrorCount)
	assert.Len(t, resp.Predictions, 9)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, 9, resp.Errors[0].Index)
	assert.Nil(t, resp.Explanations)
}

func TestBatchPredictWithExplanations(t *testing.T) {
	router := setupRouter(t)

	w := postJSON(t, router, "/api/v1/batch-predict", map[string]interface{}{
		"students":             []map[string]interface{}{passStudentJSON()},
		"include_explanations": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp BatchPredictionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 1, resp.SuccessCount)
	require.Len(t, resp.Explanations, 1)
	assert.NotEmpty(t, resp.Explanations[0].Entries)
}

func TestBatchPredictRequiresStudents(t *testing.T) {
	router := setupRouter(t)

	w := postJSON(t, router, "/api/v1/batch-predict", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	router := setupRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, true, resp["model_loaded"])
	assert.Equal(t, "1.4.2", resp["model_version"])
}

func TestHealthUnready(t *testing.T) {
	router := setupUnreadyRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp["status"])
	assert.Equal(t, false, resp["model_loaded"])
}

func TestInferenceRejectedBeforeArtifactsLoad(t *testing.T) {
	router := setupUnreadyRouter(t)

	for _, path := range []string{"/api/v1/predict", "/api/v1/explain", "/api/v1/batch-predict"} {
		w := postJSON(t, router, path, passStudentJSON())
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestGuidelines(t *testing.T) {
	router := setupRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/guidelines", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	guidelines, ok := resp["guidelines"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, guidelines, "high_priority_factors")
	assert.Contains(t, guidelines, "example_pass_profile")
}

func TestExplanationRetrievalWithoutStore(t *testing.T) {
	router := setupRouter(t)

	for _, path := range []string{"/api/v1/explanations", "/api/v1/explanations/some-id"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestStats(t *testing.T) {
	router := setupRouter(t)

	// Serve a prediction first so the counters move
	w := postJSON(t, router, "/api/v1/predict", passStudentJSON())
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot metrics.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, int64(1), snapshot.TotalPredictions)
}

func TestPredictFailureIncrementsErrorCounter(t *testing.T) {
	router := setupRouter(t)

	before := testutil.ToFloat64(metrics.PredictionErrors.WithLabelValues("preprocessing"))

	body := passStudentJSON()
	delete(body, "total_clicks")
	w := postJSON(t, router, "/api/v1/predict", body)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	after := testutil.ToFloat64(metrics.PredictionErrors.WithLabelValues("preprocessing"))
	assert.Equal(t, before+1, after)
}

func predictionDurationCount(t *testing.T) uint64 {
	t.Helper()

	var m dto.Metric
	require.NoError(t, metrics.PredictionDuration.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestServingPathsObserveLatencyHistogram(t *testing.T) {
	router := setupRouter(t)

	before := predictionDurationCount(t)

	w := postJSON(t, router, "/api/v1/predict", passStudentJSON())
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, router, "/api/v1/explain", passStudentJSON())
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, router, "/api/v1/batch-predict", map[string]interface{}{
		"students": []map[string]interface{}{passStudentJSON(), passStudentJSON()},
	})
	require.Equal(t, http.StatusOK, w.Code)

	// One observation for the single predict, one for the explain, one per
	// successful batch item.
	assert.Equal(t, before+4, predictionDurationCount(t))
}

func TestBatchPredictLargeBatchIsolation(t *testing.T) {
	router := setupRouter(t)

	students := make([]interface{}, 0, 6)
	for i := 0; i < 5; i++ {
		s := passStudentJSON()
		s["id_student"] = 2000 + i
		students = append(students, s)
	}
	students = append(students, fmt.Sprintf("%d", 42))

	w := postJSON(t, router, "/api/v1/batch-predict", map[string]interface{}{
		"students": students,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp BatchPredictionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.SuccessCount)
	assert.Equal(t, 1, resp.ErrorCount)
}
