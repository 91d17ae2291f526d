package extraction

import (
	"context"
	"log/slog"
	"time"
)

// invoicePrompt is the instruction sent alongside every invoice image
const invoicePrompt = "This is an invoice image. Extract and organize all the information in a structured format. " +
	"Include invoice number, date, vendor details, customer details, line items, subtotal, taxes, total amount, " +
	"payment terms, and any other relevant information. Format your response in a clear, well-organized markdown format."

// DefaultMaxTokens bounds the length of the model's answer
const DefaultMaxTokens = 4096

// Image is an uploaded invoice that opened successfully as an image
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Usage holds the token counts reported by the provider
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TokensPerSecond returns the throughput over d, or 0 when it can't be computed
func (u Usage) TokensPerSecond(d time.Duration) float64 {
	if u.TotalTokens <= 0 || d <= 0 {
		return 0
	}
	return float64(u.TotalTokens) / d.Seconds()
}

// Extraction is the model's answer for one invoice
type Extraction struct {
	Text     string
	Model    string
	Usage    Usage
	Duration time.Duration
}

// Extractor defines the interface for invoice extraction backends
type Extractor interface {
	// Extract sends the image to the model and returns its markdown answer
	Extract(ctx context.Context, img *Image) (*Extraction, error)
	// Close releases any resources held by the extractor
	Close() error
}

// logExtraction writes the diagnostic details of a successful call.
// None of this is shown to the end user.
func logExtraction(provider string, ex *Extraction) {
	attrs := []any{
		"provider", provider,
		"model", ex.Model,
		"duration", ex.Duration,
		"prompt_tokens", ex.Usage.PromptTokens,
		"completion_tokens", ex.Usage.CompletionTokens,
		"total_tokens", ex.Usage.TotalTokens,
	}
	if tps := ex.Usage.TokensPerSecond(ex.Duration); tps > 0 {
		attrs = append(attrs, "tokens_per_second", tps)
	}
	slog.Info("Extraction completed", attrs...)
	slog.Info("Extraction content", "provider", provider, "content", ex.Text)
}
