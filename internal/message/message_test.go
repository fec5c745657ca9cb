package message

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBinaryValidatesMIME(t *testing.T) {
	tests := []struct {
		name        string
		mime        string
		wantErr     error
		unsupported bool
	}{
		{name: "png", mime: "image/png"},
		{name: "uppercase with params", mime: "Image/PNG; q=1"},
		{name: "bmp", mime: "image/bmp"},
		{name: "empty", mime: "", wantErr: ErrInvalidPayload},
		{name: "blank", mime: "   ", wantErr: ErrInvalidPayload},
		{name: "pdf", mime: "application/pdf", wantErr: ErrInvalidPayload, unsupported: true},
		{name: "bare image prefix", mime: "image/", wantErr: ErrInvalidPayload, unsupported: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewBinary(tt.mime, "shot.png", []byte{1, 2, 3})
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, KindBinary, p.Kind)
				assert.Equal(t, 3, p.Size())
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.unsupported, errors.Is(err, ErrUnsupportedMimeType))
		})
	}
}

func TestNameOrFallback(t *testing.T) {
	assert.Equal(t, "image", Metadata{MIMEType: "image/png"}.NameOrFallback())
	assert.Equal(t, "a.png", Metadata{MIMEType: "image/png", DisplayName: "a.png"}.NameOrFallback())
}

func TestNormalizeMIME(t *testing.T) {
	assert.Equal(t, "image/jpeg", NormalizeMIME(" IMAGE/JPEG "))
	assert.Equal(t, "image/png", NormalizeMIME("image/png; charset=binary"))
	assert.Equal(t, "not a type", NormalizeMIME("Not A Type"))
}

func TestTextRequestKeepsEmptyString(t *testing.T) {
	req := TextRequest("")
	require.NotNil(t, req.Text)
	assert.Equal(t, "", *req.Text)
}
