package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"errbar/domain/core"
	"errbar/domain/stats"
	apperrors "errbar/internal/errors"
)

const maxUploadBytes = 32 << 20

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleDetect runs type detection on a single measurement
func (a *App) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	det := a.detector.Detect(req.Mean, req.ErrorBar, req.ErrorType, req.SampleSize)
	writeJSON(w, DetectResponse{
		DetectedType: det.Type,
		Confidence:   det.Confidence,
		Suggestions:  a.detector.SuggestImprovements(req.Mean, req.ErrorBar, det.Type, int(req.SampleSize)),
	})
}

// handleConvert detects the error bar type of a measurement and
// normalizes it to Mean±SD
func (a *App) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	det := a.detector.Detect(req.Mean, req.ErrorBar, req.ErrorType, req.SampleSize)
	if ok, reason := a.detector.ValidateConversionInput(req.Mean, req.ErrorBar, det.Type, int(req.SampleSize)); !ok {
		http.Error(w, reason, http.StatusUnprocessableEntity)
		return
	}

	conv, err := a.engine.Convert(req.Mean, req.ErrorBar, det.Type, int(req.SampleSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, ConvertResponse{
		Detection:  det,
		Conversion: conv,
		Validation: a.engine.Validate(conv),
	})
}

// handleCompare contrasts two groups already in Mean±SD form
func (a *App) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	level := req.ConfidenceLevel
	if level <= 0 || level >= 1 {
		level = a.level
	}

	treatment, err := a.engine.Convert(req.Treatment.Mean, req.Treatment.SD, stats.TypeSD, req.Treatment.SampleSize)
	if err != nil {
		http.Error(w, "treatment group: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	reference, err := a.engine.Convert(req.Reference.Mean, req.Reference.SD, stats.TypeSD, req.Reference.SampleSize)
	if err != nil {
		http.Error(w, "reference group: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, CompareResponse{
		Comparison: a.comparator.Compare(treatment, reference, level),
		Effects: a.engine.EffectSizes(
			req.Treatment.Mean, req.Treatment.SD, req.Treatment.SampleSize,
			req.Reference.Mean, req.Reference.SD, req.Reference.SampleSize),
	})
}

// handleAnalyze accepts a grid upload (multipart field "file") and
// runs the full pipeline over it. An optional comparison_type field
// adds group comparisons; results are recorded in the ledger when one
// is configured.
func (a *App) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// The grid reader dispatches on the file extension, so the
	// temp copy must keep it.
	tmp, err := os.CreateTemp("", "upload_*"+filepath.Ext(header.Filename))
	if err != nil {
		http.Error(w, "failed to buffer upload", http.StatusInternalServerError)
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		http.Error(w, "failed to buffer upload", http.StatusInternalServerError)
		return
	}
	tmp.Close()

	result, err := a.analysis.AnalyzeFile(r.Context(), tmp.Name())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	result.Summary.Source = header.Filename

	resp := AnalyzeResponse{Result: result}
	if compType := r.FormValue("comparison_type"); compType != "" {
		level := a.level
		if v, err := strconv.ParseFloat(r.FormValue("confidence_level"), 64); err == nil && v > 0 && v < 1 {
			level = v
		}
		resp.Comparisons = a.comparison.CompareGroups(result, compType, level)
	}

	if a.ledger != nil {
		if err := a.ledger.RecordRun(r.Context(), result); err != nil {
			log.Printf("[API] failed to record run %s: %v", result.Summary.RunID, err)
		} else if resp.Comparisons != nil {
			if err := a.ledger.RecordComparisons(r.Context(), result.Summary.RunID, resp.Comparisons); err != nil {
				log.Printf("[API] failed to record comparisons for run %s: %v", result.Summary.RunID, err)
			}
		}
	}

	writeJSON(w, resp)
}

// handleRuns lists recent ledger entries, newest first
func (a *App) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !a.requireLedger(w) {
		return
	}
	limit := 10
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}

	runs, err := a.ledger.RecentRuns(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to load runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, RunsResponse{Runs: runs})
}

// handleRun returns the stored payload of one run
func (a *App) handleRun(w http.ResponseWriter, r *http.Request) {
	if !a.requireLedger(w) {
		return
	}
	runID, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := a.ledger.RunResult(r.Context(), runID)
	if err != nil {
		a.renderLedgerError(w, err)
		return
	}
	writeJSON(w, result)
}

// handleRunComparisons returns the stored comparison set of one run
func (a *App) handleRunComparisons(w http.ResponseWriter, r *http.Request) {
	if !a.requireLedger(w) {
		return
	}
	runID, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	set, err := a.ledger.RunComparisons(r.Context(), runID)
	if err != nil {
		a.renderLedgerError(w, err)
		return
	}
	writeJSON(w, set)
}

// handleReport renders the latest recorded run as an HTML report
func (a *App) handleReport(w http.ResponseWriter, r *http.Request) {
	if !a.requireLedger(w) {
		return
	}
	runs, err := a.ledger.RecentRuns(r.Context(), 1)
	if err != nil {
		http.Error(w, "failed to load runs", http.StatusInternalServerError)
		return
	}
	if len(runs) == 0 {
		http.Error(w, "no runs recorded", http.StatusNotFound)
		return
	}

	result, err := a.ledger.RunResult(r.Context(), runs[0].RunID)
	if err != nil {
		a.renderLedgerError(w, err)
		return
	}
	comparisons, err := a.ledger.RunComparisons(r.Context(), runs[0].RunID)
	if err != nil {
		if apperrors.GetCode(err) != apperrors.CodeNotFound {
			http.Error(w, "failed to load comparisons", http.StatusInternalServerError)
			return
		}
		comparisons = nil
	}

	page := renderReportPage(buildRunReport(result, comparisons))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (a *App) requireLedger(w http.ResponseWriter) bool {
	if a.ledger == nil {
		http.Error(w, "run ledger is disabled", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (a *App) renderLedgerError(w http.ResponseWriter, err error) {
	if apperrors.GetCode(err) == apperrors.CodeNotFound {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, "ledger query failed", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] response encoding failed: %v", err)
	}
}
