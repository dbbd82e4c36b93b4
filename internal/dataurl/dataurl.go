// Package dataurl converts images to and from the self-describing
// "data:<mime>;base64,<payload>" text form used between the wizard and the
// generative service.
package dataurl

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMimeType is assumed by DecodeLenient when the token carries no prefix.
const DefaultMimeType = "image/png"

var ErrMalformedEncoding = errors.New("malformed image encoding")

var dataURLRegex = regexp.MustCompile(`^data:([^;,]+);base64,(.+)$`)

// Image pairs a MIME type with its raw bytes.
type Image struct {
	MimeType string
	Data     []byte
}

func (i Image) IsZero() bool {
	return len(i.Data) == 0
}

// Base64 returns the payload without the data URL prefix.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// String renders the image as a data URL.
func (i Image) String() string {
	return Encode(i.Data, i.MimeType)
}

func Encode(data []byte, mimeType string) string {
	return fmt.Sprintf("data:%s;base64,%s", strings.TrimSpace(mimeType), base64.StdEncoding.EncodeToString(data))
}

// Decode parses a strict data URL.
func Decode(token string) (Image, error) {
	token = strings.TrimSpace(token)
	matches := dataURLRegex.FindStringSubmatch(token)
	if len(matches) != 3 {
		return Image{}, fmt.Errorf("%w: missing data url prefix", ErrMalformedEncoding)
	}
	data, err := decodePayload(matches[2])
	if err != nil {
		return Image{}, err
	}
	return Image{MimeType: matches[1], Data: data}, nil
}

// DecodeLenient accepts either a data URL or a bare base64 payload. Bare
// payloads are labelled DefaultMimeType.
func DecodeLenient(token string) (Image, error) {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, "data:") {
		return Decode(token)
	}
	data, err := decodePayload(token)
	if err != nil {
		return Image{}, err
	}
	return Image{MimeType: DefaultMimeType, Data: data}, nil
}

// FromBase64 builds an image from a bare payload and a known MIME type, as
// returned inline by the generative service.
func FromBase64(payload, mimeType string) (Image, error) {
	data, err := decodePayload(payload)
	if err != nil {
		return Image{}, err
	}
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = Sniff(data, "")
	}
	return Image{MimeType: mimeType, Data: data}, nil
}

// FromUpload wraps uploaded bytes, resolving the MIME type from the declared
// header or the content itself. Non-image payloads are rejected.
func FromUpload(data []byte, declared string) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty upload", ErrMalformedEncoding)
	}
	mimeType := Sniff(data, declared)
	if !strings.HasPrefix(mimeType, "image/") {
		return Image{}, fmt.Errorf("%w: %s is not an image", ErrMalformedEncoding, mimeType)
	}
	return Image{MimeType: mimeType, Data: data}, nil
}

// Sniff resolves a MIME type: the declared value unless it is empty or
// generic, then content detection, then image/jpeg.
func Sniff(data []byte, declared string) string {
	mimeType := stripParams(declared)
	if mimeType != "" && mimeType != "application/octet-stream" {
		return mimeType
	}
	if len(data) > 0 {
		mimeType = stripParams(mimetype.Detect(data).String())
		if mimeType == "" || mimeType == "application/octet-stream" || mimeType == "text/plain" {
			mimeType = stripParams(http.DetectContentType(data))
		}
	}
	if mimeType == "" || mimeType == "application/octet-stream" || mimeType == "text/plain" {
		mimeType = "image/jpeg"
	}
	return mimeType
}

func decodePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedEncoding)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
	return data, nil
}

func stripParams(value string) string {
	value = strings.TrimSpace(value)
	if idx := strings.IndexByte(value, ';'); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	return strings.ToLower(value)
}
