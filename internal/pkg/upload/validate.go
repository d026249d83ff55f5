package upload

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
)

// MaxUploadSize limits product and reference image uploads.
const MaxUploadSize = 10 << 20 // 10 MB

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	// Note: SVG is intentionally excluded due to XSS risk without sanitization
}

var allowedMime = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// ValidateImageBySniff checks the provided filename (extension) and the first bytes (head)
// against a whitelist of image types. Returns detected mime or an error.
func ValidateImageBySniff(filename string, head []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", errors.New("Nur folgende Bildformate werden unterstützt: JPG, JPEG, PNG, WEBP")
	}

	detected := http.DetectContentType(head)

	// Block obvious scriptable types regardless of extension
	if strings.HasPrefix(detected, "text/html") || strings.HasPrefix(detected, "application/xhtml") {
		return "", errors.New("Ungültiger Dateityp: HTML‑Inhalte sind nicht erlaubt")
	}
	if strings.HasPrefix(detected, "text/xml") || strings.HasPrefix(detected, "application/xml") || detected == "image/svg+xml" {
		// Block SVG/XML until sanitizer is available
		return "", errors.New("SVG/XML werden aus Sicherheitsgründen nicht unterstützt")
	}

	if allowedMime[detected] {
		return detected, nil
	}

	return "", errors.New("Der Dateityp wird nicht unterstützt")
}
