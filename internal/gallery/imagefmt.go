package gallery

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"path/filepath"
	"strings"
)

// imageFormat is a detected image encoding.
type imageFormat struct {
	Name      string
	Extension string
	MediaType string
}

var (
	formatPNG  = imageFormat{Name: "png", Extension: "png", MediaType: "image/png"}
	formatJPEG = imageFormat{Name: "jpeg", Extension: "jpg", MediaType: "image/jpeg"}
	formatGIF  = imageFormat{Name: "gif", Extension: "gif", MediaType: "image/gif"}
	formatWEBP = imageFormat{Name: "webp", Extension: "webp", MediaType: "image/webp"}
)

// sourceFormat requires data to decode as PNG, JPEG or GIF.
func sourceFormat(data []byte) (imageFormat, error) {
	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return imageFormat{}, fmt.Errorf("not a decodable image")
	}
	switch name {
	case "png":
		return formatPNG, nil
	case "jpeg":
		return formatJPEG, nil
	case "gif":
		return formatGIF, nil
	default:
		return imageFormat{}, fmt.Errorf("unsupported image format %s", name)
	}
}

// generatedFormat accepts the source formats plus WEBP, which some providers
// return and which is only verified by signature.
func generatedFormat(data []byte) (imageFormat, error) {
	if f, err := sourceFormat(data); err == nil {
		return f, nil
	}
	if http.DetectContentType(data) == formatWEBP.MediaType {
		return formatWEBP, nil
	}
	return imageFormat{}, fmt.Errorf("provider returned data that is not a supported image")
}

func mediaTypeForKey(key string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(key), ".")) {
	case "png":
		return formatPNG.MediaType
	case "jpg", "jpeg":
		return formatJPEG.MediaType
	case "gif":
		return formatGIF.MediaType
	case "webp":
		return formatWEBP.MediaType
	default:
		return "application/octet-stream"
	}
}
