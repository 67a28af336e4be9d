package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

const pngMIMEType = "image/png"

// renderPDF renders the first page of a PDF; bills and receipts are nearly always one page
func renderPDF(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// decodeBitmap decodes HEIC/HEIF (phone cameras) or any registered stdlib format
func decodeBitmap(data []byte, mimeType string) (image.Image, error) {
	if isHEIC(data, mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("unsupported image format %q, expected JPEG, PNG, GIF, HEIC or PDF: %w", mimeType, err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEIC checks the ftyp box brand, falling back to the declared MIME type
func isHEIC(data []byte, mimeType string) bool {
	if len(data) >= 12 && string(data[4:8]) == "ftyp" {
		switch string(data[8:12]) {
		case "heic", "heif", "mif1", "msf1":
			return true
		}
	}
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// normalizeImage converts the document into a PNG bitmap the models accept.
// PNG input passes through untouched.
func normalizeImage(img Image) (Image, error) {
	if len(img.Data) == 0 {
		return Image{}, fmt.Errorf("empty image")
	}

	mimeType := strings.ToLower(strings.TrimSpace(img.MIMEType))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	if mimeType == pngMIMEType && !isHEIC(img.Data, mimeType) {
		return Image{Data: img.Data, MIMEType: pngMIMEType}, nil
	}

	var (
		bitmap image.Image
		err    error
	)
	if mimeType == "application/pdf" {
		bitmap, err = renderPDF(img.Data)
	} else {
		bitmap, err = decodeBitmap(img.Data, mimeType)
	}
	if err != nil {
		return Image{}, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, bitmap); err != nil {
		return Image{}, fmt.Errorf("encoding PNG: %w", err)
	}
	return Image{Data: buf.Bytes(), MIMEType: pngMIMEType}, nil
}
