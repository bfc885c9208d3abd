package constants

import "strings"

// AllowedExtensions holds the file extensions the upload flow accepts for
// scanned score sheets.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
}

// MaxDocumentMB is the upper bound for a decoded document payload.
const MaxDocumentMB = 20

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MIMEForFilename picks the MIME type declared to the model endpoint based on
// the uploaded file name. Unknown extensions fall back to PDF, which is what
// the scanning app produces by default.
func MIMEForFilename(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return "application/pdf"
	}
	switch NormalizeExt(name[i:]) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return "application/pdf"
	}
}
