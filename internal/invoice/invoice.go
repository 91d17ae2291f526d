package invoice

import (
	"time"

	"github.com/zombor/invoice-ocr/internal/extraction"
)

// ExportFilename is the name offered for the text download
const ExportFilename = "invoice_extraction.txt"

// Result is the most recent extraction of a session
type Result struct {
	Text      string           `json:"text"`
	Model     string           `json:"model,omitempty"`
	Usage     extraction.Usage `json:"usage"`
	Duration  time.Duration    `json:"-"`
	Source    string           `json:"source"`
	CreatedAt time.Time        `json:"created_at"`
}
