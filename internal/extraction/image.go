package extraction

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gen2brain/heic"
)

// PrepareImage checks that an upload opens as an image and returns it ready
// for extraction. JPEG, PNG and GIF bytes are passed through untouched; HEIC
// photos are re-encoded as JPEG since vision APIs don't accept them.
func PrepareImage(filename string, data []byte, contentType string) (*Image, error) {
	contentType = DetectContentType(filename, data, contentType)

	if len(data) == 0 {
		return nil, &UploadError{Filename: filename, Cause: errors.New("the file is empty")}
	}

	if contentType == "application/pdf" || bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, &UploadError{Filename: filename, Cause: errors.New("cannot identify image file")}
	}

	if isHEICFormat(data) || isHEICMimeType(contentType) {
		jpegData, err := heicToJPEG(data)
		if err != nil {
			return nil, &UploadError{Filename: filename, Cause: err}
		}
		return &Image{Filename: filename, ContentType: "image/jpeg", Data: jpegData}, nil
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &UploadError{Filename: filename, Cause: fmt.Errorf("cannot identify image file: %w", err)}
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, &UploadError{Filename: filename, Cause: errors.New("the image has no pixels")}
	}

	return &Image{Filename: filename, ContentType: "image/" + format, Data: data}, nil
}

// DetectContentType normalizes the declared content type, falling back to the
// file extension and then to sniffing the bytes
func DetectContentType(filename string, data []byte, declared string) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}

	if len(data) == 0 {
		return "application/octet-stream"
	}
	sniffed := http.DetectContentType(data)
	if i := strings.Index(sniffed, ";"); i >= 0 {
		sniffed = sniffed[:i]
	}
	return sniffed
}

// heicToJPEG decodes a HEIC/HEIF photo and encodes it as JPEG
func heicToJPEG(data []byte) ([]byte, error) {
	img, err := heic.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
