package ai

import (
	"strings"

	"switchboard/pkg/errors"
)

// ImageData is an inline image split into its media type and base64 payload.
type ImageData struct {
	MediaType string
	Data      string
}

var imageMediaTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// ParseImageDataURI splits "data:image/png;base64,...." into media type and payload.
// Unknown or missing image types default to image/jpeg.
func ParseImageDataURI(uri string) (ImageData, error) {
	if !strings.HasPrefix(uri, "data:") {
		return ImageData{}, errors.NewValidationError("image_url", "not a data URI", truncate(uri, 32))
	}

	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok || payload == "" {
		return ImageData{}, errors.NewValidationError("image_url", "data URI has no payload", truncate(uri, 32))
	}

	mediaType := "image/jpeg"
	meta := strings.Split(header, ";")
	if sub, found := strings.CutPrefix(meta[0], "image/"); found {
		if mt, known := imageMediaTypes[strings.ToLower(sub)]; known {
			mediaType = mt
		}
	}

	return ImageData{MediaType: mediaType, Data: payload}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
