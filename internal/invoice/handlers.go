package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/zombor/invoice-ocr/internal/extraction"
)

// maxUploadSize allows high-resolution phone photos
const maxUploadSize = int64(50 << 20)

// statusClientClosedRequest reports an extraction abandoned because its
// request or session went away
const statusClientClosedRequest = 499

const emptyStateMessage = "Upload an invoice and click 'Extract Invoice Data' to see the extracted information here."

// resultResponse is the JSON shape of a stored result
type resultResponse struct {
	Text       string           `json:"text"`
	HTML       string           `json:"html"`
	Model      string           `json:"model,omitempty"`
	Usage      extraction.Usage `json:"usage"`
	DurationMS int64            `json:"duration_ms"`
	Source     string           `json:"source"`
	CreatedAt  time.Time        `json:"created_at"`
}

func newResultResponse(result *Result) resultResponse {
	html, err := renderMarkdown(result.Text)
	if err != nil {
		slog.Warn("Failed to render markdown", "error", err)
		html = template.HTML(template.HTMLEscapeString(result.Text))
	}
	return resultResponse{
		Text:       result.Text,
		HTML:       string(html),
		Model:      result.Model,
		Usage:      result.Usage,
		DurationMS: result.Duration.Milliseconds(),
		Source:     result.Source,
		CreatedAt:  result.CreatedAt,
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// jsonError writes an error response as {"error": message}
func jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// statusFor maps extraction failures to HTTP status codes
func statusFor(err error) int {
	var uploadErr *extraction.UploadError
	var providerErr *extraction.ProviderError
	var transportErr *extraction.TransportError

	switch {
	case errors.Is(err, ErrExtractionInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrNoResult):
		return http.StatusNotFound
	case errors.As(err, &uploadErr):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.As(err, &providerErr), errors.As(err, &transportErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// userMessage renders err for the page
func userMessage(err error) string {
	if errors.Is(err, ErrExtractionInProgress) || errors.Is(err, ErrNoResult) {
		return err.Error()
	}
	return extraction.UserMessage(err)
}

type indexPage struct {
	Result     *resultResponse
	ResultHTML template.HTML
	EmptyState string
	Filename   string
}

// handleIndex renders the page with the session's current result
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, sess *Session) {
	page := indexPage{
		EmptyState: emptyStateMessage,
		Filename:   ExportFilename,
	}
	if result, err := s.service.Current(sess); err == nil {
		resp := newResultResponse(result)
		page.Result = &resp
		page.ResultHTML = template.HTML(resp.HTML)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, page); err != nil {
		slog.Error("Error rendering page", "error", err)
	}
}

// handleExtract runs an extraction on the uploaded invoice
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request, sess *Session) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose an invoice image to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	result, err := s.service.Extract(r.Context(), sess, header.Filename, data, header.Header.Get("Content-Type"))
	if err != nil {
		jsonError(w, userMessage(err), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(newResultResponse(result)); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleCurrent returns the session's current result
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request, sess *Session) {
	result, err := s.service.Current(sess)
	if err != nil {
		jsonError(w, userMessage(err), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newResultResponse(result)); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleDownload serves the stored text as a file download
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, sess *Session) {
	data, err := s.service.Export(sess)
	if err != nil {
		jsonError(w, userMessage(err), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ExportFilename+`"`)
	w.Write(data)
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}
