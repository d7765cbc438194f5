package params_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rushs321/suko/internal/codec"
	"github.com/Rushs321/suko/internal/params"
)

func TestExtract_Defaults(t *testing.T) {
	rc, err := params.Extract("url=http://example.com/a.png")
	require.NoError(t, err)

	assert.Equal(t, "http://example.com/a.png", rc.TargetURL)
	assert.Equal(t, codec.FormatWebP, rc.Format)
	assert.False(t, rc.Grayscale)
	assert.Equal(t, params.DefaultQuality, rc.Quality)
}

func TestExtract_Flags(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		format    codec.Format
		grayscale bool
		quality   int
	}{
		{"jpg forces jpeg", "url=x&jpg=1", codec.FormatJPEG, false, 80},
		{"jpg=0 keeps webp", "url=x&jpg=0", codec.FormatWebP, false, 80},
		{"bw sets grayscale", "url=x&bw=1", codec.FormatWebP, true, 80},
		{"bw=0 keeps color", "url=x&bw=0", codec.FormatWebP, false, 80},
		{"quality parsed", "url=x&l=35", codec.FormatWebP, false, 35},
		{"quality zero kept", "url=x&l=0", codec.FormatWebP, false, 0},
		{"malformed quality", "url=x&l=abc", codec.FormatWebP, false, 80},
		{"empty quality", "url=x&l=", codec.FormatWebP, false, 80},
		{"quality clamped high", "url=x&l=250", codec.FormatWebP, false, 100},
		{"quality clamped low", "url=x&l=-5", codec.FormatWebP, false, 0},
		{"all flags", "jpg=1&bw=1&l=10&url=x", codec.FormatJPEG, true, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, err := params.Extract(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.format, rc.Format)
			assert.Equal(t, tt.grayscale, rc.Grayscale)
			assert.Equal(t, tt.quality, rc.Quality)
		})
	}
}

func TestExtract_MissingURL(t *testing.T) {
	for _, q := range []string{"", "jpg=1", "url=", "l=40&bw=1"} {
		_, err := params.Extract(q)
		assert.ErrorIs(t, err, params.ErrMissingURL, "query %q", q)
	}
}

func TestExtract_ForwardsUnknownParams(t *testing.T) {
	rc, err := params.Extract("url=http%3A%2F%2Fcdn.example.com%2Fimg.jpg%3Fw%3D100&token=abc&jpg=1&flag&size=large")
	require.NoError(t, err)

	assert.Equal(t, "http://cdn.example.com/img.jpg?w=100&token=abc&flag&size=large", rc.TargetURL)
	assert.Equal(t, codec.FormatJPEG, rc.Format)
}

func TestExtract_ForwardsInEncounterOrder(t *testing.T) {
	rc, err := params.Extract("z=1&url=http://h/p&a=2&m=")
	require.NoError(t, err)
	assert.Equal(t, "http://h/p&z=1&a=2&m", rc.TargetURL)
}

func TestExtract_RepeatedURLJoined(t *testing.T) {
	rc, err := params.Extract("url=http://h/p?a=1&url=2")
	require.NoError(t, err)
	assert.Equal(t, "http://h/p?a=1&url=2", rc.TargetURL)
}

func TestRewriteLegacyURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://1.1.1.1/bmi/example.com/a.jpg", "http://example.com/a.jpg"},
		{"http://1.1.0.4/bmi/http://example.com/a.jpg", "http://example.com/a.jpg"},
		{"http://10.20.30.40/bmi/https://example.com/a.jpg", "http://example.com/a.jpg"},
		{"HTTP://1.1.1.1/BMI/example.com/a.jpg", "http://example.com/a.jpg"},
		{"https://example.com/bmi/a.jpg", "https://example.com/bmi/a.jpg"},
		{"http://1.1.1.1/other/a.jpg", "http://1.1.1.1/other/a.jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, params.RewriteLegacyURL(tt.in), "input %q", tt.in)
	}
}

func TestExtract_AppliesLegacyRewrite(t *testing.T) {
	rc, err := params.Extract("url=http://1.1.1.1/bmi/https://example.com/a.jpg&x=1")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/a.jpg&x=1", rc.TargetURL)
}

func TestRequestContext_WithFormatCopies(t *testing.T) {
	rc := params.RequestContext{TargetURL: "u", Format: codec.FormatWebP, Quality: 80}
	alt := rc.WithFormat(codec.FormatJPEG)

	assert.Equal(t, codec.FormatWebP, rc.Format)
	assert.Equal(t, codec.FormatJPEG, alt.Format)
	assert.Equal(t, rc.TargetURL, alt.TargetURL)
}

func TestContextRoundTrip(t *testing.T) {
	rc := params.RequestContext{TargetURL: "u", Format: codec.FormatJPEG, Quality: 5}
	got, ok := params.FromContext(params.WithContext(context.Background(), rc))
	require.True(t, ok)
	assert.Equal(t, rc, got)

	_, ok = params.FromContext(context.Background())
	assert.False(t, ok)
}
