// Package pdfdoc inspects uploaded documents before they are stored.
package pdfdoc

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

const MIMEType = "application/pdf"

var (
	ErrNotPDF   = errors.New("not a PDF document")
	ErrNoPages  = errors.New("PDF has no pages")
	ErrNotImage = errors.New("not an image")
)

// Info describes a validated PDF.
type Info struct {
	Pages int
	MIME  string
}

// Inspect sniffs the content type and reads the page tree. It never reads page content.
func Inspect(r io.ReaderAt, size int64) (info Info, err error) {
	if size <= 0 {
		return Info{}, ErrNotPDF
	}
	mt, err := mimetype.DetectReader(io.NewSectionReader(r, 0, size))
	if err != nil {
		return Info{}, fmt.Errorf("sniff content type: %w", err)
	}
	if !mt.Is(MIMEType) {
		return Info{}, fmt.Errorf("%w: detected %s", ErrNotPDF, mt.String())
	}

	// The parser panics on some malformed xref tables.
	defer func() {
		if rec := recover(); rec != nil {
			info, err = Info{}, fmt.Errorf("%w: %v", ErrNotPDF, rec)
		}
	}()
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	pages := reader.NumPage()
	if pages <= 0 {
		return Info{}, ErrNoPages
	}
	return Info{Pages: pages, MIME: MIMEType}, nil
}

// SniffImage returns the detected MIME type and extension of an image.
func SniffImage(r io.ReaderAt, size int64) (string, string, error) {
	if size <= 0 {
		return "", "", ErrNotImage
	}
	mt, err := mimetype.DetectReader(io.NewSectionReader(r, 0, size))
	if err != nil {
		return "", "", fmt.Errorf("sniff content type: %w", err)
	}
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", "", fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
	}
	return mt.String(), mt.Extension(), nil
}
