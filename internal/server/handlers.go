package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/plantex/internal/batch"
	"github.com/MeKo-Tech/plantex/internal/classifier"
	"github.com/MeKo-Tech/plantex/internal/models"
	"github.com/MeKo-Tech/plantex/internal/utils"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	g := s.pool.Geometry()
	response := HealthResponse{
		Status:  "healthy",
		Version: s.version,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Labels:  len(s.pool.Labels()),
		Input:   fmt.Sprintf("%dx%dx%d %s", g.Width, g.Height, g.Channels, g.Layout),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding health response: %v\n", err)
	}
}

// modelsHandler returns the known model files and whether they are installed.
func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	list := models.ListAvailableModels(s.modelsDir)
	response := ModelsResponse{
		Models: list,
		Count:  len(list),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding models response: %v\n", err)
	}
}

// classifyHandler classifies one uploaded image.
func (s *Server) classifyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requestID := RequestIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	if err := r.ParseMultipartForm(s.maxUploadBytes()); err != nil {
		if isBodyTooLarge(err) {
			s.writeErrorResponse(w, requestID, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, requestID, "Failed to parse form data", http.StatusBadRequest)
		}
		return
	}

	orientation, err := intFormValue(r, "orientation")
	if err != nil {
		s.writeErrorResponse(w, requestID, err.Error(), http.StatusBadRequest)
		return
	}
	topK, err := intFormValue(r, "top_k")
	if err != nil {
		s.writeErrorResponse(w, requestID, err.Error(), http.StatusBadRequest)
		return
	}

	format := r.FormValue("format")
	if format == "" {
		format = r.URL.Query().Get("format")
	}
	switch format {
	case "", batch.FormatJSON, batch.FormatText, batch.FormatCSV:
	default:
		s.writeErrorResponse(w, requestID, "Unsupported format: "+format, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, requestID, "No image file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, requestID, "Failed to read image data", http.StatusInternalServerError)
		return
	}
	uploadSizeBytes.Observe(float64(len(data)))

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()

	resp, err := s.classify(ctx, "http", data, orientation, topK)
	resp.RequestID = requestID
	if err != nil {
		s.writeErrorResponse(w, requestID, err.Error(), statusForError(err))
		return
	}

	if format == batch.FormatText || format == batch.FormatCSV {
		s.writeFormatted(w, header.Filename, resp, format)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding classify response: %v\n", err)
	}
}

// classify decodes and classifies an image. It is shared by the HTTP and the
// WebSocket endpoints.
func (s *Server) classify(ctx context.Context, kind string, data []byte, orientation, topK int) (ClassifyResponse, error) {
	start := time.Now()
	resp := ClassifyResponse{Orientation: orientation}

	img, meta, err := utils.DecodeImage(data)
	if err != nil {
		observeClassification(kind, "error", 0, 0, false)
		return resp, err
	}
	resp.Width, resp.Height = meta.Width, meta.Height

	results, err := s.pool.ClassifyTopK(ctx, img, orientation, topK)
	elapsed := time.Since(start)
	resp.ProcessingMs = elapsed.Milliseconds()
	if err != nil {
		observeClassification(kind, "error", 0, 0, false)
		return resp, err
	}

	var top float32
	if len(results) > 0 {
		top = results[0].Confidence
	}
	observeClassification(kind, "success", elapsed.Seconds(), top, len(results) > 0)

	resp.Success = true
	resp.Results = results
	return resp, nil
}

func (s *Server) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeoutSec <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, time.Duration(s.timeoutSec)*time.Second)
}

func (s *Server) writeFormatted(w http.ResponseWriter, filename string, resp ClassifyResponse, format string) {
	images := []batch.ImageResult{{
		File:         filename,
		Width:        resp.Width,
		Height:       resp.Height,
		Orientation:  resp.Orientation,
		Results:      resp.Results,
		ProcessingMs: float64(resp.ProcessingMs),
	}}
	out, err := batch.FormatResults(images, format, batch.DefaultPrecision)
	if err != nil {
		http.Error(w, fmt.Sprintf("formatting failed: %v", err), http.StatusInternalServerError)
		return
	}

	if format == batch.FormatCSV {
		w.Header().Set("Content-Type", "text/csv")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	if _, err := io.WriteString(w, out); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing response: %v\n", err)
	}
}

func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return true
	}
	// Older multipart readers flatten the error to text.
	return strings.Contains(strings.ToLower(err.Error()), "request body too large")
}

// intFormValue parses an optional integer form field. Missing fields are zero.
func intFormValue(r *http.Request, name string) (int, error) {
	raw := r.FormValue(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

// statusForError maps classification failures to HTTP status codes.
func statusForError(err error) int {
	var invalid *classifier.InvalidImageError
	var decode *utils.ImageProcessingError
	switch {
	case errors.As(err, &invalid), errors.As(err, &decode):
		return http.StatusBadRequest
	case errors.Is(err, classifier.ErrClosed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, requestID, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ClassifyResponse{
		Success:   false,
		RequestID: requestID,
		Error:     message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		// Log error, but can't send another response
		fmt.Fprintf(os.Stderr, "Error writing error response: %v\n", err)
	}
}
