package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

const (
	// MaxUploadSize bounds a decoded face image.
	MaxUploadSize = 5 << 20
	// MaxRequestBody bounds any request body; base64 inflates images by a
	// third.
	MaxRequestBody = MaxUploadSize*4/3 + 64<<10
)

var (
	errImageTooLarge    = errors.New("image exceeds maximum size")
	errBodyTooLarge     = errors.New("request body too large")
	errUnsupportedImage = errors.New("image must be JPEG or PNG")
	errImageMissing     = errors.New("image is required")
	errImageEncoding    = errors.New("image is not valid base64")
)

var allowedImageTypes = []string{"image/jpeg", "image/png"}

// decodeBase64Image accepts raw base64 or a data URI and returns the image
// bytes after checking size and type.
func decodeBase64Image(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "data:") {
		comma := strings.Index(encoded, ",")
		if comma < 0 {
			return nil, errImageEncoding
		}
		encoded = encoded[comma+1:]
	}
	if encoded == "" {
		return nil, errImageMissing
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxUploadSize+2 {
		return nil, errImageTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errImageEncoding
	}
	return checkImage(data)
}

// decodeOptionalImage decodes an optional inline image. Empty input yields
// nil. Device file URIs cannot be read server side and are rejected.
func decodeOptionalImage(field, encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}
	if strings.Contains(encoded, "://") {
		return nil, &ValidationError{Fields: map[string]string{field: "must be base64 image data, not a file URI"}}
	}
	return decodeBase64Image(encoded)
}

// readImageFile reads the multipart "image" part.
func readImageFile(c *gin.Context) ([]byte, error) {
	file, err := c.FormFile("image")
	if err != nil {
		if errors.Is(formError(err), errBodyTooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, errImageMissing
	}
	if file.Size > MaxUploadSize {
		return nil, errImageTooLarge
	}

	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
	if err != nil {
		return nil, err
	}
	return checkImage(data)
}

// formError maps a multipart parse failure onto a request error.
func formError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errBodyTooLarge
	}
	return &ValidationError{Fields: map[string]string{"body": "invalid form"}}
}

func checkImage(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errImageMissing
	}
	if len(data) > MaxUploadSize {
		return nil, errImageTooLarge
	}
	if !mimetype.EqualsAny(mimetype.Detect(data).String(), allowedImageTypes...) {
		return nil, errUnsupportedImage
	}
	return data, nil
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}
