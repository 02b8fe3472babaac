package export

import (
	"fmt"
	"strings"
)

// Format names a supported download format.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// ParseFormat normalises a user supplied format, defaulting to CSV.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType returns the MIME type of the rendered document.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/csv"
}

// Table is an ordered tabular export body.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Renderer renders a table into bytes of one format.
type Renderer interface {
	Render(table Table) ([]byte, error)
}

// Render dispatches to the renderer registered for the format.
func Render(format Format, table Table) ([]byte, error) {
	if len(table.Headers) == 0 {
		return nil, fmt.Errorf("%s export requires at least one header", format)
	}
	switch format {
	case FormatCSV:
		return NewCSVRenderer().Render(table)
	case FormatPDF:
		return NewPDFRenderer().Render(table)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
