// Package export renders session transcripts to HTML, Markdown, JSON and PDF.
package export

import "errors"

// Format represents the export output format
type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatPDF      Format = "pdf"
)

// Request contains parameters for an export operation
type Request struct {
	SessionID         string
	Format            Format
	IncludeOperations bool
	IncludeComments   bool
	IncludeConflicts  bool
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrTranscriptUnavailable indicates the session transcript could not be loaded.
	ErrTranscriptUnavailable = errors.New("export transcript unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
