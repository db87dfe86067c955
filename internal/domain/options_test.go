package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions_Thumbnail(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]any
		expected ThumbnailOptions
	}{
		{
			name:     "empty map uses defaults",
			raw:      map[string]any{},
			expected: ThumbnailOptions{},
		},
		{
			name:     "nil map",
			raw:      nil,
			expected: ThumbnailOptions{},
		},
		{
			name:     "json numbers",
			raw:      map[string]any{"width": float64(200), "height": float64(150), "quality": float64(90)},
			expected: ThumbnailOptions{Width: 200, Height: 150, Quality: 90},
		},
		{
			name:     "form strings",
			raw:      map[string]any{"width": "64", "height": "32", "format": " PNG "},
			expected: ThumbnailOptions{Width: 64, Height: 32, Format: "png"},
		},
		{
			name:     "unknown keys are ignored",
			raw:      map[string]any{"width": 10, "watermark": "yes", "angle": 90},
			expected: ThumbnailOptions{Width: 10},
		},
		{
			name:     "blank strings are treated as absent",
			raw:      map[string]any{"width": "", "format": ""},
			expected: ThumbnailOptions{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := ParseOptions(JobTypeThumbnail, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, opts)
			assert.Equal(t, JobTypeThumbnail, opts.JobType())
		})
	}
}

func TestParseOptions_RangeChecks(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		message string
	}{
		{name: "zero width", raw: map[string]any{"width": 0}, message: "width must be a positive integer"},
		{name: "negative height", raw: map[string]any{"height": "-5"}, message: "height must be a positive integer"},
		{name: "width not a number", raw: map[string]any{"width": "wide"}, message: "width must be an integer"},
		{name: "width too large", raw: map[string]any{"width": 5000}, message: "width must be at most 4096"},
		{name: "quality too large", raw: map[string]any{"quality": 101}, message: "quality must be at most 100"},
		{name: "unknown format", raw: map[string]any{"format": "webp"}, message: "format must be one of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOptions(JobTypeThumbnail, tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidOptions)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestParseOptions_UnsupportedJobType(t *testing.T) {
	_, err := ParseOptions(JobType("watermark"), map[string]any{})
	assert.ErrorIs(t, err, ErrUnsupportedJobType)
	assert.False(t, JobType("watermark").Valid())
	assert.True(t, JobTypeThumbnail.Valid())
}

func TestThumbnailOptions_Map(t *testing.T) {
	opts, err := ParseOptions(JobTypeThumbnail, map[string]any{"width": "64", "format": "PNG", "extra": true})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"width": 64, "format": "png"}, opts.Map())
	assert.Empty(t, ThumbnailOptions{}.Map())
}
