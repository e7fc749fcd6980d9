package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kirillkom/labflow/internal/core/ports"
	"github.com/kirillkom/labflow/internal/core/usecase"
	"github.com/kirillkom/labflow/internal/observability/metrics"
)

type Router struct {
	ingestUC ports.SessionIngestor
	reportUC *usecase.ReportUseCase

	serviceName    string
	maxUploadBytes int64
	rateLimitRPS   int
	rateLimitBurst int
	httpMetrics    *metrics.HTTPServerMetrics
}

type RouterOptions struct {
	ServiceName    string
	MaxUploadBytes int64
	RateLimitRPS   int
	RateLimitBurst int
	Metrics        *metrics.HTTPServerMetrics
}

func NewRouter(ingestUC ports.SessionIngestor, reportUC *usecase.ReportUseCase, opts RouterOptions) *Router {
	return &Router{
		ingestUC:       ingestUC,
		reportUC:       reportUC,
		serviceName:    opts.ServiceName,
		maxUploadBytes: opts.MaxUploadBytes,
		rateLimitRPS:   opts.RateLimitRPS,
		rateLimitBurst: opts.RateLimitBurst,
		httpMetrics:    opts.Metrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/sessions", rt.createSession)
	mux.HandleFunc("/v1/sessions/", rt.sessionSubroutes)
	if rt.httpMetrics != nil {
		mux.Handle("/metrics", rt.httpMetrics.Handler())
	}

	var handler http.Handler = mux
	if rt.httpMetrics != nil {
		handler = rt.httpMetrics.Middleware(rt.serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	if rt.rateLimitRPS > 0 {
		handler = rateLimitMiddleware(rt.rateLimitRPS, rt.rateLimitBurst, handler)
	}
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	session, err := rt.ingestUC.CreateSession(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// sessionSubroutes dispatches /v1/sessions/{id}[/action].
func (rt *Router) sessionSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	sessionID, action, _ := strings.Cut(rest, "/")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session id is required"})
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		rt.getSession(w, r, sessionID)
	case action == "documents" && r.Method == http.MethodPost:
		rt.uploadDocument(w, r, sessionID)
	case action == "process" && r.Method == http.MethodPost:
		rt.startProcessing(w, r, sessionID)
	case action == "report" && r.Method == http.MethodGet:
		rt.getReport(w, r, sessionID)
	case action == "telemetry" && r.Method == http.MethodGet:
		rt.getTelemetry(w, r, sessionID)
	case action == "confirm" && r.Method == http.MethodPost:
		rt.confirmClient(w, r, sessionID)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := rt.reportUC.GetSession(r.Context(), sessionID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request, sessionID string) {
	if rt.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file exceeds upload size limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingestUC.AddDocument(
		r.Context(),
		sessionID,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file exceeds upload size limit"})
			return
		}
		rt.writeError(w, r, err)
		return
	}

	if rt.httpMetrics != nil {
		rt.httpMetrics.RecordUploadBytes(rt.serviceName, doc.SizeBytes)
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (rt *Router) startProcessing(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := rt.ingestUC.StartProcessing(r.Context(), sessionID); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": sessionID, "status": "processing"})
}

func (rt *Router) getReport(w http.ResponseWriter, r *http.Request, sessionID string) {
	report, err := rt.reportUC.GetReport(r.Context(), sessionID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) getTelemetry(w http.ResponseWriter, r *http.Request, sessionID string) {
	entries, err := rt.reportUC.ListBatchMetrics(r.Context(), sessionID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "batches": entries})
}

func (rt *Router) confirmClient(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req struct {
		ClientID string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.ClientID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "client_id is required"})
		return
	}

	if err := rt.reportUC.ConfirmClient(r.Context(), sessionID, req.ClientID); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID, "confirmed_client_id": req.ClientID})
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= 500 {
		logError(r, err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
