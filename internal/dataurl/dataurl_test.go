package dataurl

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{0},
		[]byte("hello"),
		pngHeader,
		bytes.Repeat([]byte{0xff, 0x00, 0x7f}, 1000),
	}
	mimes := []string{"image/png", "image/jpeg", "image/webp", "image/heic"}

	for _, mimeType := range mimes {
		for _, data := range payloads {
			got, err := Decode(Encode(data, mimeType))
			require.NoError(t, err)
			assert.Equal(t, mimeType, got.MimeType)
			assert.Equal(t, data, got.Data)
		}
	}
}

func TestImageStringMatchesEncode(t *testing.T) {
	img := Image{MimeType: "image/png", Data: pngHeader}
	assert.Equal(t, Encode(pngHeader, "image/png"), img.String())
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"bare payload", "aGVsbG8="},
		{"missing base64 marker", "data:image/png,aGVsbG8="},
		{"empty payload", "data:image/png;base64,"},
		{"invalid base64", "data:image/png;base64,@@@"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.token)
			assert.ErrorIs(t, err, ErrMalformedEncoding)
		})
	}
}

func TestDecodeLenientDefaultsMime(t *testing.T) {
	img, err := DecodeLenient("aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, DefaultMimeType, img.MimeType)
	assert.Equal(t, []byte("hello"), img.Data)

	img, err = DecodeLenient("data:image/jpeg;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MimeType)

	_, err = DecodeLenient("not base64 at all!")
	assert.ErrorIs(t, err, ErrMalformedEncoding)
}

func TestFromBase64SniffsMissingMime(t *testing.T) {
	img, err := FromBase64(Image{Data: pngHeader}.Base64(), "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)
}

func TestSniff(t *testing.T) {
	assert.Equal(t, "image/webp", Sniff(pngHeader, "image/webp; charset=binary"))
	assert.Equal(t, "image/png", Sniff(pngHeader, "application/octet-stream"))
	assert.Equal(t, "image/jpeg", Sniff(nil, ""))
}

func TestFromUpload(t *testing.T) {
	img, err := FromUpload(pngHeader, "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)

	_, err = FromUpload(nil, "image/png")
	assert.ErrorIs(t, err, ErrMalformedEncoding)

	_, err = FromUpload([]byte("%PDF-1.4 document"), "")
	assert.ErrorIs(t, err, ErrMalformedEncoding)
}
