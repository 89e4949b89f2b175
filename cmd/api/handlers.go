package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/AsclepiaAI/asclepia-mvp/engine/chunker"
	"github.com/AsclepiaAI/asclepia-mvp/engine/domain"
	"github.com/AsclepiaAI/asclepia-mvp/engine/ingest"
	"github.com/AsclepiaAI/asclepia-mvp/engine/rag"
	"github.com/AsclepiaAI/asclepia-mvp/pkg/metrics"
	"github.com/google/uuid"
)

type api struct {
	ingest    *ingest.Service
	rag       *rag.Service
	chunker   *chunker.Chunker
	logger    *slog.Logger
	maxUpload int64

	uploads   *metrics.Counter
	queries   *metrics.Counter
	failures  *metrics.Counter
	queryTime *metrics.Histogram
}

func newAPI(ing *ingest.Service, ragSvc *rag.Service, chk *chunker.Chunker, reg *metrics.Registry, logger *slog.Logger, maxUpload int64) *api {
	return &api{
		ingest:    ing,
		rag:       ragSvc,
		chunker:   chk,
		logger:    logger,
		maxUpload: maxUpload,
		uploads:   reg.Counter("asclepia_uploads_total", "Documents uploaded"),
		queries:   reg.Counter("asclepia_queries_total", "Questions answered"),
		failures:  reg.Counter("asclepia_failures_total", "Request failures"),
		queryTime: reg.Histogram("asclepia_query_seconds", "Query latency", []float64{0.1, 0.5, 1, 2.5, 5, 10}),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errStatus maps pipeline errors to HTTP status codes.
func errStatus(err error) int {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnsupportedFormat), errors.Is(err, domain.ErrEmptyContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPartialIngestion):
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

// readUpload pulls the file out of a multipart form, respecting the
// configured size cap. Falls back to the raw body when the request is
// not multipart.
func (a *api) readUpload(r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, a.maxUpload)

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(a.maxUpload); err != nil {
			return nil, "", err
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		return data, hdr.Filename, err
	}

	data, err := io.ReadAll(r.Body)
	return data, r.URL.Query().Get("filename"), err
}

func mediaFromFilename(name string) (domain.MediaType, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return domain.MediaPDF, true
	case ".csv":
		return domain.MediaCSV, true
	default:
		return "", false
	}
}

// uploadResponse is returned by upload and update.
type uploadResponse struct {
	*domain.IngestResult
	Filename string `json:"filename"`
	Partial  bool   `json:"partial"`
}

func (a *api) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, filename, err := a.readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload: "+err.Error())
		return
	}
	media, ok := mediaFromFilename(filename)
	if !ok {
		writeError(w, http.StatusUnsupportedMediaType, "only .pdf and .csv files are supported")
		return
	}

	doc := domain.Document{
		FileID:   uuid.NewString(),
		Filename: filename,
		Media:    media,
		ByteLen:  len(data),
	}

	res, err := a.ingest.Ingest(r.Context(), doc, data)
	if err != nil && !errors.Is(err, domain.ErrPartialIngestion) {
		a.failures.Inc()
		a.logger.Error("upload failed", "file_id", doc.FileID, "err", err)
		writeError(w, errStatus(err), err.Error())
		return
	}
	a.uploads.Inc()
	writeJSON(w, http.StatusCreated, uploadResponse{
		IngestResult: res,
		Filename:     filename,
		Partial:      res.Partial(),
	})
}

func (a *api) handlePreview(w http.ResponseWriter, r *http.Request) {
	data, filename, err := a.readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload: "+err.Error())
		return
	}
	media, ok := mediaFromFilename(filename)
	if !ok || media != domain.MediaCSV {
		writeError(w, http.StatusUnsupportedMediaType, "preview supports .csv files only")
		return
	}

	preview, err := a.chunker.PreviewCSV(data)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (a *api) handleUpdate(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("id")
	if err := domain.ValidateFileID(fileID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, filename, err := a.readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload: "+err.Error())
		return
	}
	media, ok := mediaFromFilename(filename)
	if !ok {
		writeError(w, http.StatusUnsupportedMediaType, "only .pdf and .csv files are supported")
		return
	}

	doc := domain.Document{
		FileID:   fileID,
		Filename: filename,
		Media:    media,
		ByteLen:  len(data),
	}

	res, err := a.ingest.Update(r.Context(), doc, data)
	if err != nil && !errors.Is(err, domain.ErrPartialIngestion) {
		a.failures.Inc()
		a.logger.Error("update failed", "file_id", fileID, "err", err)
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		IngestResult: res,
		Filename:     filename,
		Partial:      res.Partial(),
	})
}

func (a *api) handleDelete(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("id")
	if err := a.ingest.Delete(r.Context(), fileID); err != nil {
		a.failures.Inc()
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file_id": fileID, "status": "deleted"})
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

func (a *api) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	answer, err := a.rag.Query(r.Context(), req.Question, req.TopK)
	a.queryTime.Since(start)
	if err != nil {
		a.failures.Inc()
		var ge *domain.GenerationError
		if errors.As(err, &ge) {
			a.logger.Error("generation failed", "err", ge.Cause())
			writeError(w, http.StatusBadGateway, "answer generation failed")
			return
		}
		a.logger.Error("query failed", "err", err)
		writeError(w, errStatus(err), err.Error())
		return
	}
	a.queries.Inc()
	writeJSON(w, http.StatusOK, answer)
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := a.rag.Health(r.Context())
	status := http.StatusOK
	if !st.Overall {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, st)
}
