package upload

import (
	"testing"
)

func TestValidateImageBySniff(t *testing.T) {
	pngHead := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	jpegHead := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}
	htmlHead := []byte("<!DOCTYPE html><html>")

	tests := []struct {
		name     string
		filename string
		head     []byte
		wantErr  bool
	}{
		{"png ok", "produkt.png", pngHead, false},
		{"jpeg ok", "produkt.jpg", jpegHead, false},
		{"falsche endung", "produkt.gif", pngHead, true},
		{"html als png getarnt", "produkt.png", htmlHead, true},
		{"svg blockiert", "produkt.svg", []byte("<svg xmlns=...>"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateImageBySniff(tt.filename, tt.head)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateImageBySniff(%q) error = %v, wantErr %v", tt.filename, err, tt.wantErr)
			}
		})
	}
}
