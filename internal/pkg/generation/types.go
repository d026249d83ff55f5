package generation

import (
	"errors"
	"fmt"
)

// Limits of one generation request.
const (
	MinImagesPerRequest = 1
	MaxImagesPerRequest = 4
	MaxPromptLength     = 2000
)

// Output formats accepted by the image model.
const (
	OutputFormatWebP = "webp"
	OutputFormatPNG  = "png"
	OutputFormatJPG  = "jpg"
)

var aspectRatios = map[string]bool{
	"1:1":  true,
	"4:3":  true,
	"3:4":  true,
	"16:9": true,
	"9:16": true,
}

// Settings are the user-chosen knobs of a generation request.
type Settings struct {
	NumberOfImages int    `json:"numberOfImages"`
	OutputFormat   string `json:"outputFormat"`
	AspectRatio    string `json:"aspectRatio"`
}

// Validate checks the settings against the model limits and returns a
// user-facing message on violation.
func (s Settings) Validate() error {
	if s.NumberOfImages < MinImagesPerRequest || s.NumberOfImages > MaxImagesPerRequest {
		return fmt.Errorf("die Bildanzahl muss zwischen %d und %d liegen", MinImagesPerRequest, MaxImagesPerRequest)
	}
	switch s.OutputFormat {
	case OutputFormatWebP, OutputFormatPNG, OutputFormatJPG:
	default:
		return errors.New("das Ausgabeformat muss webp, png oder jpg sein")
	}
	if !aspectRatios[s.AspectRatio] {
		return errors.New("ungültiges Seitenverhältnis")
	}
	return nil
}

// Request is one job for the image model: a prompt plus the publicly
// reachable URLs of the product and reference images.
type Request struct {
	Prompt    string
	ImageURLs []string
	Settings  Settings
}

// Validate checks the request including its settings.
func (r Request) Validate() error {
	if r.Prompt == "" {
		return errors.New("der Prompt darf nicht leer sein")
	}
	if len(r.Prompt) > MaxPromptLength {
		return fmt.Errorf("der Prompt darf höchstens %d Zeichen lang sein", MaxPromptLength)
	}
	if len(r.ImageURLs) == 0 {
		return errors.New("mindestens ein Produktbild wird benötigt")
	}
	return r.Settings.Validate()
}

// GeneratedImage is one output image delivered by the model.
type GeneratedImage struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	FileName    string `json:"file_name"`
}

// Result is the model output for one request.
type Result struct {
	Images      []GeneratedImage `json:"images"`
	Description string           `json:"description"`
}
