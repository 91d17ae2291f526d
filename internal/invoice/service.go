package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/zombor/invoice-ocr/internal/extraction"
)

// DefaultTimeout bounds a single extraction call
const DefaultTimeout = 120 * time.Second

var (
	// ErrExtractionInProgress is returned when the session already has an extraction running
	ErrExtractionInProgress = errors.New("an extraction is already running for this session")
	// ErrNoResult is returned when the session has nothing to show or export yet
	ErrNoResult = errors.New("no invoice has been extracted yet")
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// Service runs extractions on behalf of sessions
type Service struct {
	extractor  extraction.Extractor
	timeout    time.Duration
	timeSource TimeSource
}

// NewService creates a new Service with the default time source
func NewService(extractor extraction.Extractor, timeout time.Duration) *Service {
	return NewServiceWithDeps(extractor, timeout, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(extractor extraction.Extractor, timeout time.Duration, timeSrc TimeSource) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		extractor:  extractor,
		timeout:    timeout,
		timeSource: timeSrc,
	}
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "invoice"
	}

	return base + ext
}

// Extract opens the upload as an image, sends it to the model and stores the
// answer in the session. A failed extraction leaves the session untouched.
func (s *Service) Extract(ctx context.Context, sess *Session, filename string, data []byte, contentType string) (*Result, error) {
	start := time.Now()
	slog.Info("Processing new invoice image",
		"session", sess.ID,
		"filename", filename,
		"content_type", contentType,
		"file_size", len(data),
	)

	img, err := extraction.PrepareImage(filename, data, contentType)
	if err != nil {
		slog.Error("Failed to open uploaded file", "session", sess.ID, "filename", filename, "error", err)
		return nil, err
	}

	if !sess.inflight.TryAcquire(1) {
		return nil, ErrExtractionInProgress
	}
	defer sess.inflight.Release(1)

	ex, err := s.run(ctx, sess, img)
	if err != nil {
		slog.Error("Failed to extract invoice",
			"session", sess.ID,
			"filename", filename,
			"content_type", img.ContentType,
			"error", err,
		)
		return nil, err
	}

	result := &Result{
		Text:      ex.Text,
		Model:     ex.Model,
		Usage:     ex.Usage,
		Duration:  ex.Duration,
		Source:    sanitizeFilename(filename),
		CreatedAt: s.timeSource.Now(),
	}
	sess.store(result)

	slog.Info("Invoice extracted", "session", sess.ID, "total_duration", time.Since(start))
	return result, nil
}

// run calls the extractor in its own goroutine. The call is abandoned when
// the timeout elapses, the request goes away or the session ends.
func (s *Service) run(ctx context.Context, sess *Session, img *extraction.Image) (*extraction.Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(sess.ctx, cancel)
	defer stop()

	type outcome struct {
		ex  *extraction.Extraction
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		ex, err := s.extractor.Extract(ctx, img)
		done <- outcome{ex: ex, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("extracting invoice: %w", out.err)
		}
		return out.ex, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("extracting invoice: %w", ctx.Err())
	}
}

// Current returns the session's result. A nil session has none.
func (s *Service) Current(sess *Session) (*Result, error) {
	if sess == nil {
		return nil, ErrNoResult
	}
	result, ok := sess.Result()
	if !ok {
		return nil, ErrNoResult
	}
	return result, nil
}

// Export returns the stored text exactly as extracted
func (s *Service) Export(sess *Session) ([]byte, error) {
	result, err := s.Current(sess)
	if err != nil {
		return nil, err
	}
	return []byte(result.Text), nil
}
