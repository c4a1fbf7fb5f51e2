package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"lexiscan/internal/document"
	"lexiscan/internal/parser"
	"lexiscan/internal/pipeline"
	"lexiscan/internal/report"
)

// handleAnalyze accepts a document as a multipart upload (field "document")
// or as JSON {"text": ..., "filename": ...} and queues an analysis run.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var (
		doc      *document.Document
		filename string
		ok       bool
	)
	if isJSONRequest(r) {
		var body struct {
			Text     string `json:"text"`
			Filename string `json:"filename"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)).Decode(&body); err != nil {
			jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
			return
		}
		doc, ok = s.textDocument(w, body.Text, "text")
		if !ok {
			return
		}
		filename = body.Filename
		if filename == "" {
			filename = "text"
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		doc, filename, ok = s.readDocumentField(w, r, "document")
		if !ok {
			return
		}
	}

	run := s.orchestrator.NewAnalysisRun(filename, *doc)
	s.submitRun(w, run)
}

// handleCompare accepts two documents as multipart uploads (fields
// "document_a" and "document_b") or as JSON {"text_a": ..., "text_b": ...}
// and queues a comparison run.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var (
		docA, docB           *document.Document
		filenameA, filenameB string
		ok                   bool
	)
	if isJSONRequest(r) {
		var body struct {
			TextA     string `json:"text_a"`
			TextB     string `json:"text_b"`
			FilenameA string `json:"filename_a"`
			FilenameB string `json:"filename_b"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 2*s.cfg.MaxUploadBytes)).Decode(&body); err != nil {
			jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if docA, ok = s.textDocument(w, body.TextA, "text_a"); !ok {
			return
		}
		if docB, ok = s.textDocument(w, body.TextB, "text_b"); !ok {
			return
		}
		filenameA, filenameB = body.FilenameA, body.FilenameB
		if filenameA == "" {
			filenameA = "document_a"
		}
		if filenameB == "" {
			filenameB = "document_b"
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, 2*s.cfg.MaxUploadBytes+1024*1024)
		if err := r.ParseMultipartForm(64 << 20); err != nil {
			jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		if docA, filenameA, ok = s.readDocumentField(w, r, "document_a"); !ok {
			return
		}
		if docB, filenameB, ok = s.readDocumentField(w, r, "document_b"); !ok {
			return
		}
	}

	run := s.orchestrator.NewComparisonRun(filenameA, filenameB, *docA, *docB)
	s.submitRun(w, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := s.orchestrator.Run(runID)
	if err != nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run.Snapshot())
}

// handleGetReport serves the rendered report for a succeeded run, as
// Markdown by default or HTML with ?format=html. Until the run succeeds
// the report does not exist and the endpoint returns 404.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := s.orchestrator.Run(runID)
	if err != nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	snap := run.Snapshot()
	md, ready := run.Report()
	if snap.State != pipeline.StateSucceeded || !ready {
		jsonError(w, fmt.Sprintf("report not available: run is %s", snap.State), http.StatusNotFound)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "markdown", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		io.WriteString(w, md)
	case "html":
		page, err := report.Page(reportTitle(snap), md)
		if err != nil {
			jsonError(w, "failed to render report: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, page)
	default:
		jsonError(w, "unknown format (expected markdown or html)", http.StatusBadRequest)
	}
}

// submitRun queues the run and writes the accepted response. A full queue
// fails the run before rejecting so the stored state explains itself.
func (s *Server) submitRun(w http.ResponseWriter, run *pipeline.Run) {
	if err := s.orchestrator.Submit(run); err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			jsonError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"run_id":     run.ID,
		"state":      pipeline.StateQueued,
		"poll_url":   "/v1/runs/" + run.ID,
		"report_url": "/v1/runs/" + run.ID + "/report",
	})
}

// readDocumentField reads one uploaded file from the multipart form and
// parses it into a document. Writes the error response itself on failure.
func (s *Server) readDocumentField(w http.ResponseWriter, r *http.Request, field string) (*document.Document, string, bool) {
	file, header, err := r.FormFile(field)
	if err != nil {
		jsonError(w, field+" is required: "+err.Error(), http.StatusBadRequest)
		return nil, "", false
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return nil, "", false
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read "+field, http.StatusInternalServerError)
		return nil, "", false
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("%s exceeds max size (%d bytes)", field, s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return nil, "", false
	}

	doc, err := parser.ExtractFile(filename, data, parser.Options{PDFFallbackPdftotext: s.cfg.PDFFallbackPdftotext})
	if err != nil {
		var extErr *parser.ExtractionError
		if errors.As(err, &extErr) {
			jsonError(w, err.Error(), http.StatusUnprocessableEntity)
			return nil, "", false
		}
		jsonError(w, "failed to parse "+field, http.StatusInternalServerError)
		return nil, "", false
	}
	return doc, filename, true
}

// textDocument wraps pasted text from a JSON body as a plain-text document.
func (s *Server) textDocument(w http.ResponseWriter, text, field string) (*document.Document, bool) {
	if strings.TrimSpace(text) == "" {
		jsonError(w, field+" is required", http.StatusBadRequest)
		return nil, false
	}
	return &document.Document{Text: text, Format: document.FormatText}, true
}

func reportTitle(snap pipeline.RunSnapshot) string {
	if snap.Mode == pipeline.ModeCompare && len(snap.Filenames) == 2 {
		return fmt.Sprintf("Comparison: %s vs %s", snap.Filenames[0], snap.Filenames[1])
	}
	if len(snap.Filenames) > 0 {
		return "Analysis: " + snap.Filenames[0]
	}
	return "Analysis"
}

func isJSONRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/json")
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
