package session

import (
	"strings"

	"warelay/internal/domain"
)

// DefaultSpreadsheetExt is the filename suffix that marks a guest list upload.
const DefaultSpreadsheetExt = ".xlsx"

// IsGuestList reports whether media is a spreadsheet upload: its media type
// contains "spreadsheet" or its filename ends with ext. Media with neither
// signal is not a guest list.
func IsGuestList(media *domain.Media, ext string) bool {
	if media == nil {
		return false
	}
	if ext == "" {
		ext = DefaultSpreadsheetExt
	}
	if strings.Contains(media.MimeType, "spreadsheet") {
		return true
	}
	return media.Filename != "" && strings.HasSuffix(media.Filename, ext)
}
