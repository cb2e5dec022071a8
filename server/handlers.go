package server

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/rushteam/homeprice/batch"
	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/pipeline"
	"github.com/rushteam/homeprice/pkg/logging"
)

// PredictResponse 是 /predict 的响应。
// Predictions 与 Actuals 按结果顺序一一对应；没有任何真实价格时省略 Actuals。
type PredictResponse struct {
	Predictions  []float64               `json:"predictions"`
	Actuals      []*float64              `json:"actuals,omitempty"`
	Results      []core.PredictionResult `json:"results"`
	Skipped      []core.SkippedRecord    `json:"skipped"`
	ModelVersion string                  `json:"model_version,omitempty"`
}

// RunBatchResponse 是 /run_batch 的响应
type RunBatchResponse struct {
	Status        string         `json:"status"`
	RowsPredicted int            `json:"rows_predicted"`
	OutputDir     string         `json:"output_dir"`
	Summary       *batch.Summary `json:"summary"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("write response failed")
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Housing Price Prediction API is running",
		"service": pipeline.ServiceName,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.predictor.Health()
	status := http.StatusOK
	if !h.ModelLoaded {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.Ctx(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var rows []map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &rows); err != nil {
			writeError(w, http.StatusBadRequest, "payload must be a JSON array of objects")
			return
		}
	}
	if len(rows) == 0 {
		log.Warn().Msg("empty prediction payload")
		writeError(w, http.StatusBadRequest, "No data provided")
		return
	}
	if len(rows) > s.opts.MaxRecords {
		writeError(w, http.StatusRequestEntityTooLarge, "too many records: max "+strconv.Itoa(s.opts.MaxRecords))
		return
	}

	records := make([]core.RawRecord, len(rows))
	for i, m := range rows {
		records[i] = core.NewRawRecord(m)
	}
	pred, err := s.predictor.Predict(ctx, records)
	if err != nil {
		status := predictionStatus(err)
		log.Error().Err(err).Int("records", len(records)).Int("status", status).Msg("prediction failed")
		if status == http.StatusServiceUnavailable {
			writeError(w, status, "Model not loaded")
			return
		}
		writeError(w, status, "Prediction failed")
		return
	}

	resp := PredictResponse{
		Predictions:  pred.Predictions(),
		Results:      pred.Results,
		Skipped:      pred.Skipped,
		ModelVersion: s.predictor.Health().ModelVersion,
	}
	for _, res := range pred.Results {
		if res.Actual != nil {
			resp.Actuals = make([]*float64, len(pred.Results))
			for i, r := range pred.Results {
				resp.Actuals[i] = r.Actual
			}
			break
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// predictionStatus 把推理错误映射为 HTTP 状态码：没有可用快照时 503，其他 500
func predictionStatus(err error) int {
	if errors.Is(err, core.ErrModelNotLoaded) || core.IsArtifactMissing(err) || core.IsArtifactCorrupt(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	if s.batcher == nil {
		writeError(w, http.StatusServiceUnavailable, "batch runner not configured")
		return
	}
	date := s.now()
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.Parse(batch.DefaultDateLayout, d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	sum, err := s.batcher.Run(r.Context(), date)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("batch run failed")
		switch {
		case core.IsStoreNotFound(err):
			writeError(w, http.StatusNotFound, "No input found for "+date.Format(batch.DefaultDateLayout))
		default:
			writeError(w, predictionStatus(err), "Batch run failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, RunBatchResponse{
		Status:        "success",
		RowsPredicted: sum.Predicted,
		OutputDir:     path.Dir(sum.Output) + "/",
		Summary:       sum,
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.batcher == nil {
		writeError(w, http.StatusServiceUnavailable, "batch runner not configured")
		return
	}
	limit := 5
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	latest, err := s.batcher.Latest(r.Context(), limit)
	if errors.Is(err, batch.ErrNoPredictions) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No predictions found"})
		return
	}
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("latest predictions failed")
		writeError(w, http.StatusInternalServerError, "failed to read predictions")
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.predictor.Reload(r.Context()); err != nil {
		h := s.predictor.Health()
		status := http.StatusInternalServerError
		if !h.ModelLoaded {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
		return
	}
	writeJSON(w, http.StatusOK, s.predictor.Health())
}
