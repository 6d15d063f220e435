package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0ritam/XAI-Dashboard/internal/artifacts"
	"github.com/0ritam/XAI-Dashboard/internal/audit"
	"github.com/0ritam/XAI-Dashboard/internal/explain"
	"github.com/0ritam/XAI-Dashboard/internal/inference"
	"github.com/0ritam/XAI-Dashboard/internal/metrics"
	"github.com/0ritam/XAI-Dashboard/internal/models"
	"github.com/0ritam/XAI-Dashboard/internal/store"
)

// Handler handles API requests
type Handler struct {
	bundle     *artifacts.Bundle
	assembler  *inference.Assembler
	predictor  *inference.Predictor
	aggregator *explain.Aggregator
	store      *store.Store
	audit      *audit.Logger
	stats      *metrics.ServiceMetrics
	logger     *zap.Logger
}

// NewHandler creates a new API handler. The store and audit logger are
// optional; a nil value disables persistence and audit logging respectively.
func NewHandler(
	bundle *artifacts.Bundle,
	assembler *inference.Assembler,
	predictor *inference.Predictor,
	aggregator *explain.Aggregator,
	st *store.Store,
	auditLogger *audit.Logger,
	stats *metrics.ServiceMetrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		bundle:     bundle,
		assembler:  assembler,
		predictor:  predictor,
		aggregator: aggregator,
		store:      st,
		audit:      auditLogger,
		stats:      stats,
		logger:     logger,
	}
}

// Ready reports whether model artifacts are loaded.
func (h *Handler) Ready() bool {
	return h.bundle != nil
}

// RegisterRoutes registers API routes
func (h *Handler) RegisterRoutes(r *gin.Engine, ready gin.HandlerFunc) {
	r.GET("/health", h.handleHealth)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/guidelines", h.handleGuidelines)
		v1.GET("/stats", h.handleStats)

		inferenceRoutes := v1.Group("", ready)
		{
			inferenceRoutes.POST("/predict", h.handlePredict)
			inferenceRoutes.POST("/explain", h.handleExplain)
			inferenceRoutes.POST("/batch-predict", h.handleBatchPredict)
			inferenceRoutes.GET("/explanations", h.handleExplanationList)
			inferenceRoutes.GET("/explanations/:id", h.handleExplanationRetrieval)
		}
	}
}

// PredictionResponse is the payload returned for a single prediction.
type PredictionResponse struct {
	StudentID     int                `json:"student_id"`
	Prediction    string             `json:"prediction"`
	Probabilities map[string]float64 `json:"probabilities"`
	Confidence    float64            `json:"confidence"`
	ModelVersion  string             `json:"model_version"`
	Timestamp     time.Time          `json:"timestamp"`
}

// ExplanationResponse couples a prediction with its merged attribution.
type ExplanationResponse struct {
	PredictionResponse
	ExplanationID string               `json:"explanation_id,omitempty"`
	Explanation   *explain.Explanation `json:"explanation"`
}

// BatchItemError records why one batch entry failed.
type BatchItemError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BatchPredictionRequest is the batch endpoint input. Students are kept as
// raw JSON so one malformed entry cannot fail the whole batch.
type BatchPredictionRequest struct {
	Students            []json.RawMessage `json:"students" binding:"required"`
	IncludeExplanations bool              `json:"include_explanations"`
}

// BatchPredictionResponse summarizes a batch run.
type BatchPredictionResponse struct {
	Predictions  []PredictionResponse   `json:"predictions"`
	Explanations []*explain.Explanation `json:"explanations,omitempty"`
	SuccessCount int                    `json:"success_count"`
	ErrorCount   int                    `json:"error_count"`
	Errors       []BatchItemError       `json:"errors,omitempty"`
}

// handlePredict scores a single student record.
func (h *Handler) handlePredict(c *gin.Context) {
	var student models.StudentFeatures
	if err := c.ShouldBindJSON(&student); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	result, err := h.predict(&student)
	if err != nil {
		h.stats.RecordError()
		h.writeInferenceError(c, err)
		return
	}

	h.stats.RecordPrediction(time.Since(start))
	metrics.PredictionsTotal.WithLabelValues(result.Prediction).Inc()
	metrics.PredictionDuration.Observe(time.Since(start).Seconds())

	h.logAudit(c, student.StudentID, result, nil)

	c.JSON(http.StatusOK, h.predictionResponse(&student, result))
}

// handleExplain scores a record and attaches the merged attribution ranking.
func (h *Handler) handleExplain(c *gin.Context) {
	var student models.StudentFeatures
	if err := c.ShouldBindJSON(&student); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	vector, err := h.assembler.Assemble(&student)
	if err != nil {
		h.stats.RecordError()
		h.writeInferenceError(c, err)
		return
	}

	result, err := h.predictor.Predict(vector)
	if err != nil {
		h.stats.RecordError()
		h.writeInferenceError(c, err)
		return
	}

	explanation, err := h.aggregator.Explain(vector)
	if err != nil {
		h.stats.RecordError()
		h.writeInferenceError(c, err)
		return
	}

	h.stats.RecordPrediction(time.Since(start))
	h.stats.RecordExplanation()
	metrics.PredictionsTotal.WithLabelValues(result.Prediction).Inc()
	metrics.PredictionDuration.Observe(time.Since(start).Seconds())
	metrics.ExplanationsTotal.Inc()
	for _, method := range explanation.DegradedMethods {
		metrics.ExplanationsDegraded.WithLabelValues(method).Inc()
	}

	resp := ExplanationResponse{
		PredictionResponse: h.predictionResponse(&student, result),
		Explanation:        explanation,
	}
	resp.ExplanationID = h.persistExplanation(c, &student, result, explanation)

	h.logAudit(c, student.StudentID, result, explanation)

	c.JSON(http.StatusOK, resp)
}

// handleBatchPredict scores a list of records with per-item error isolation.
func (h *Handler) handleBatchPredict(c *gin.Context) {
	var req BatchPredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := BatchPredictionResponse{
		Predictions: make([]PredictionResponse, 0, len(req.Students)),
	}

	for i, raw := range req.Students {
		itemStart := time.Now()

		var student models.StudentFeatures
		if err := json.Unmarshal(raw, &student); err != nil {
			resp.ErrorCount++
			resp.Errors = append(resp.Errors, BatchItemError{Index: i, Error: err.Error()})
			continue
		}

		vector, err := h.assembler.Assemble(&student)
		if err != nil {
			resp.ErrorCount++
			resp.Errors = append(resp.Errors, BatchItemError{Index: i, Error: err.Error()})
			continue
		}

		result, err := h.predictor.Predict(vector)
		if err != nil {
			resp.ErrorCount++
			resp.Errors = append(resp.Errors, BatchItemError{Index: i, Error: err.Error()})
			continue
		}

		if req.IncludeExplanations {
			explanation, err := h.aggregator.Explain(vector)
			if err != nil {
				resp.ErrorCount++
				resp.Errors = append(resp.Errors, BatchItemError{Index: i, Error: err.Error()})
				continue
			}
			resp.Explanations = append(resp.Explanations, explanation)
		}

		resp.SuccessCount++
		resp.Predictions = append(resp.Predictions, h.predictionResponse(&student, result))
		metrics.PredictionsTotal.WithLabelValues(result.Prediction).Inc()
		metrics.PredictionDuration.Observe(time.Since(itemStart).Seconds())
	}

	c.JSON(http.StatusOK, resp)
}

// handleExplanationRetrieval returns a stored explanation by ID.
func (h *Handler) handleExplanationRetrieval(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Explanation storage is not available"})
		return
	}

	record, err := h.store.GetExplanation(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Explanation not found"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// handleExplanationList returns recently stored explanations.
func (h *Handler) handleExplanationList(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Explanation storage is not available"})
		return
	}

	// Parse time range, default to last 24 hours
	since := 24 * time.Hour
	if sinceStr := c.Query("since"); sinceStr != "" {
		if d, err := time.ParseDuration(sinceStr); err == nil {
			since = d
		}
	}

	records, err := h.store.ListRecent(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve explanations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"explanations": records})
}

// handleHealth reports liveness and artifact readiness.
func (h *Handler) handleHealth(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	version := ""
	if h.bundle != nil {
		version = h.bundle.Manifest.ModelVersion
	} else {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":        status,
		"model_loaded":  h.bundle != nil,
		"model_version": version,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStats exposes the mutex-guarded service counters.
func (h *Handler) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.Snapshot())
}

// handleGuidelines serves static guidance for reaching a Pass outcome.
func (h *Handler) handleGuidelines(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"guidelines": gin.H{
			"high_priority_factors": gin.H{
				"completed_course": "Must be true (dominant model importance)",
				"total_clicks":     "Aim for > 3000 clicks (high engagement)",
				"studied_credits":  "60-240 credits (reasonable study load)",
			},
			"engagement_metrics": gin.H{
				"avg_clicks_per_session": "> 30",
				"active_days":            "> 60",
				"daily_engagement_rate":  "> 0.6",
				"engagement_duration":    "> 200 minutes",
			},
			"academic_performance": gin.H{
				"avg_assessment_score": "> 70",
				"total_assessments":    "> 3",
			},
			"demographics_that_help": gin.H{
				"age_band":          "35-55 (mature students perform better)",
				"highest_education": "HE Qualification or higher",
				"disability":        "N (no disability)",
			},
			"example_pass_profile": gin.H{
				"gender":                 "M",
				"region":                 "South East Region",
				"highest_education":      "HE Qualification",
				"imd_band":               "70-80%",
				"age_band":               "35-55",
				"disability":             "N",
				"num_of_prev_attempts":   0,
				"studied_credits":        120,
				"total_clicks":           4500,
				"avg_clicks_per_session": 45,
				"active_days":            75,
				"daily_engagement_rate":  0.75,
				"avg_assessment_score":   78,
				"total_assessments":      4,
				"completed_course":       true,
				"total_sessions":         85,
				"engagement_duration":    350,
				"withdrawal_status":      false,
				"click_variability":      10.0,
				"first_access_day":       5,
				"last_access_day":        180,
				"score_consistency":      5.0,
				"first_submission":       15,
				"last_submission":        170,
				"banked_assessments":     0,
			},
		},
	})
}

func (h *Handler) predict(student *models.StudentFeatures) (*inference.PredictionResult, error) {
	vector, err := h.assembler.Assemble(student)
	if err != nil {
		return nil, err
	}
	return h.predictor.Predict(vector)
}

func (h *Handler) predictionResponse(student *models.StudentFeatures, result *inference.PredictionResult) PredictionResponse {
	return PredictionResponse{
		StudentID:     student.StudentID,
		Prediction:    result.Prediction,
		Probabilities: result.Probabilities,
		Confidence:    result.Confidence,
		ModelVersion:  h.bundle.Manifest.ModelVersion,
		Timestamp:     time.Now().UTC(),
	}
}

// persistExplanation stores the record best-effort and returns its ID, or an
// empty string when storage is unavailable or the write fails.
func (h *Handler) persistExplanation(c *gin.Context, student *models.StudentFeatures, result *inference.PredictionResult, explanation *explain.Explanation) string {
	if h.store == nil {
		return ""
	}

	record := &store.ExplanationRecord{
		ID:           uuid.NewString(),
		StudentID:    student.StudentID,
		Prediction:   result.Prediction,
		Confidence:   result.Confidence,
		ModelVersion: h.bundle.Manifest.ModelVersion,
		Explanation:  explanation,
		Timestamp:    time.Now().UTC(),
	}
	if err := h.store.SaveExplanation(c.Request.Context(), record); err != nil {
		h.logger.Warn("failed to store explanation", zap.Error(err))
		return ""
	}
	return record.ID
}

// logAudit indexes the event best-effort; audit failures never fail a request.
func (h *Handler) logAudit(c *gin.Context, studentID int, result *inference.PredictionResult, explanation *explain.Explanation) {
	if h.audit == nil {
		return
	}
	if err := h.audit.LogPrediction(c.Request.Context(), studentID, result, h.bundle.Manifest.ModelVersion, explanation); err != nil {
		h.logger.Warn("failed to index prediction event", zap.Error(err))
	}
}

// writeInferenceError maps pipeline errors onto HTTP status codes. Input
// problems are the caller's fault, everything downstream of a valid vector
// is ours.
func (h *Handler) writeInferenceError(c *gin.Context, err error) {
	var preprocessErr *inference.PreprocessingError
	if errors.As(err, &preprocessErr) {
		metrics.PredictionErrors.WithLabelValues("preprocessing").Inc()
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": preprocessErr.Error()})
		return
	}

	var schemaErr *inference.SchemaMismatchError
	if errors.As(err, &schemaErr) {
		metrics.PredictionErrors.WithLabelValues("schema_mismatch").Inc()
		h.logger.Error("feature schema mismatch", zap.Error(schemaErr))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal feature schema mismatch"})
		return
	}

	var explainErr *explain.Error
	if errors.As(err, &explainErr) {
		metrics.PredictionErrors.WithLabelValues("explanation").Inc()
		h.logger.Error("explanation failed", zap.Error(explainErr))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Explanation generation failed"})
		return
	}

	metrics.PredictionErrors.WithLabelValues("prediction").Inc()
	h.logger.Error("prediction failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error during prediction"})
}
