package app

import (
	"errors"

	"github.com/Sibusisongondo/Tdone/internal/viewer"
)

var (
	ErrNotFound          = errors.New("magazine not found")
	ErrArtistNotFound    = errors.New("artist not found")
	ErrForbidden         = errors.New("only the owner can do that")
	ErrNotReadableOnline = errors.New("magazine is not available for online reading")
	ErrNotDownloadable   = errors.New("magazine is not available for download")

	ErrTitleRequired       = errors.New("title is required")
	ErrDescriptionRequired = errors.New("description is required")
	ErrCategoryRequired    = errors.New("category is required")
	ErrUnknownCategory     = errors.New("unknown category")
	ErrFileRequired        = errors.New("a PDF file is required")
	ErrInvalidFileType     = errors.New("only PDF files are accepted")
	ErrFileTooLarge        = errors.New("file exceeds the upload limit")
	ErrInvalidCover        = errors.New("cover must be an image")
	ErrCoverTooLarge       = errors.New("cover exceeds the upload limit")

	ErrUnknownAction    = viewer.ErrUnknownAction
	ErrRetriesExhausted = viewer.ErrRetriesExhausted
)
