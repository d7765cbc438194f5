package compress_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rushs321/suko/internal/codec"
	"github.com/Rushs321/suko/internal/compress"
	"github.com/Rushs321/suko/internal/config"
	"github.com/Rushs321/suko/internal/params"
)

// fakeCodec returns a fixed output size per format and records every call.
type fakeCodec struct {
	sizes map[codec.Format]int
	err   error
	calls []codec.Options
	best  int
}

func (f *fakeCodec) Encode(_ context.Context, _ []byte, opts codec.Options) (*codec.Output, error) {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &codec.Output{Format: opts.Format, Data: bytes.Repeat([]byte{1}, f.sizes[opts.Format])}, nil
}

func (f *fakeCodec) EncodeBest(_ context.Context, _ []byte, opts codec.Options) (*codec.Output, error) {
	f.best++
	if f.err != nil {
		return nil, f.err
	}
	best := codec.Candidates[0]
	for _, c := range codec.Candidates[1:] {
		if f.sizes[c] < f.sizes[best] {
			best = c
		}
	}
	return &codec.Output{
		Format: best,
		Data:   bytes.Repeat([]byte{1}, f.sizes[best]),
		Sizes:  f.sizes,
	}, nil
}

func request(format codec.Format) params.RequestContext {
	return params.RequestContext{TargetURL: "http://example.com/a.png", Format: format, Quality: 40}
}

func TestNewSizeInfo(t *testing.T) {
	s := compress.NewSizeInfo(1000, 600)
	assert.Equal(t, 400, s.Saved)
	assert.InDelta(t, 40.0, s.Percent, 0.001)
	assert.True(t, s.Won())

	inflated := compress.NewSizeInfo(1000, 1200)
	assert.Equal(t, -200, inflated.Saved)
	assert.False(t, inflated.Won())

	assert.False(t, compress.NewSizeInfo(1000, 1000).Won())
	assert.Zero(t, compress.NewSizeInfo(0, 10).Percent)
}

func TestDecide_ServesFirstWin(t *testing.T) {
	fc := &fakeCodec{sizes: map[codec.Format]int{codec.FormatWebP: 600, codec.FormatJPEG: 500}}
	eng := compress.New(fc, config.CompressionConfig{AltFormatFallback: true})

	d, err := eng.Decide(context.Background(), make([]byte, 1000), request(codec.FormatWebP))
	require.NoError(t, err)

	assert.Equal(t, compress.OutcomeServe, d.Outcome)
	assert.Equal(t, codec.FormatWebP, d.Output.Format)
	assert.Equal(t, 400, d.Size.Saved)
	assert.Len(t, d.Attempts, 1)
	require.Len(t, fc.calls, 1)
	assert.Equal(t, 40, fc.calls[0].Quality)
}

func TestDecide_FallbackFlipsFormatOnce(t *testing.T) {
	tests := []struct {
		name     string
		first    int
		second   int
		outcome  compress.Outcome
		final    codec.Format
		attempts int
	}{
		{"tie then win", 1000, 700, compress.OutcomeServe, codec.FormatJPEG, 2},
		{"inflate then win", 1300, 999, compress.OutcomeServe, codec.FormatJPEG, 2},
		{"tie then tie", 1000, 1000, compress.OutcomeRedirect, codec.FormatJPEG, 2},
		{"inflate then inflate", 1100, 1200, compress.OutcomeRedirect, codec.FormatJPEG, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCodec{sizes: map[codec.Format]int{codec.FormatWebP: tt.first, codec.FormatJPEG: tt.second}}
			eng := compress.New(fc, config.CompressionConfig{AltFormatFallback: true})

			d, err := eng.Decide(context.Background(), make([]byte, 1000), request(codec.FormatWebP))
			require.NoError(t, err)

			assert.Equal(t, tt.outcome, d.Outcome)
			assert.Equal(t, tt.final, d.Context.Format)
			assert.Len(t, d.Attempts, tt.attempts)
			require.Len(t, fc.calls, 2, "never a third attempt")
			assert.Equal(t, codec.FormatWebP, fc.calls[0].Format)
			assert.Equal(t, codec.FormatJPEG, fc.calls[1].Format)
			if tt.outcome == compress.OutcomeRedirect {
				assert.Nil(t, d.Output)
			}
		})
	}
}

func TestDecide_FallbackFromJPEG(t *testing.T) {
	fc := &fakeCodec{sizes: map[codec.Format]int{codec.FormatWebP: 10, codec.FormatJPEG: 1000}}
	eng := compress.New(fc, config.CompressionConfig{AltFormatFallback: true})

	d, err := eng.Decide(context.Background(), make([]byte, 1000), request(codec.FormatJPEG))
	require.NoError(t, err)

	assert.Equal(t, compress.OutcomeServe, d.Outcome)
	assert.Equal(t, codec.FormatWebP, d.Output.Format)
	assert.Equal(t, codec.FormatWebP, d.Context.Format)
}

func TestDecide_NoFallbackRedirectsAfterOneAttempt(t *testing.T) {
	fc := &fakeCodec{sizes: map[codec.Format]int{codec.FormatWebP: 1000, codec.FormatJPEG: 10}}
	eng := compress.New(fc, config.CompressionConfig{AltFormatFallback: false})

	d, err := eng.Decide(context.Background(), make([]byte, 1000), request(codec.FormatWebP))
	require.NoError(t, err)

	assert.Equal(t, compress.OutcomeRedirect, d.Outcome)
	assert.Len(t, fc.calls, 1)
	assert.Equal(t, 0, d.Size.Saved)
}

func TestDecide_BestFormat(t *testing.T) {
	fc := &fakeCodec{sizes: map[codec.Format]int{codec.FormatWebP: 700, codec.FormatJPEG: 400}}
	eng := compress.New(fc, config.CompressionConfig{BestFormat: true, AltFormatFallback: true})

	d, err := eng.Decide(context.Background(), make([]byte, 1000), request(codec.FormatWebP))
	require.NoError(t, err)

	assert.Equal(t, compress.OutcomeServe, d.Outcome)
	assert.Equal(t, codec.FormatJPEG, d.Output.Format)
	assert.Equal(t, codec.FormatJPEG, d.Context.Format)
	assert.Equal(t, 1, fc.best)
	assert.Empty(t, fc.calls)
	require.Len(t, d.Attempts, 1)
	assert.Equal(t, 700, d.Attempts[0].Sizes[codec.FormatWebP])
}

func TestDecide_BestFormatNoWinDoesNotFallback(t *testing.T) {
	fc := &fakeCodec{sizes: map[codec.Format]int{codec.FormatWebP: 1500, codec.FormatJPEG: 1200}}
	eng := compress.New(fc, config.CompressionConfig{BestFormat: true, AltFormatFallback: true})

	d, err := eng.Decide(context.Background(), make([]byte, 1000), request(codec.FormatWebP))
	require.NoError(t, err)

	assert.Equal(t, compress.OutcomeRedirect, d.Outcome)
	assert.Equal(t, 1, fc.best)
	assert.Empty(t, fc.calls)
}

func TestDecide_CodecError(t *testing.T) {
	fc := &fakeCodec{err: codec.ErrUnsupportedImage}
	eng := compress.New(fc, config.CompressionConfig{AltFormatFallback: true})

	d, err := eng.Decide(context.Background(), []byte("not an image"), request(codec.FormatWebP))
	require.Error(t, err)

	assert.True(t, errors.Is(err, codec.ErrUnsupportedImage))
	require.NotNil(t, d)
	assert.Equal(t, compress.OutcomeRedirect, d.Outcome)
	assert.Len(t, fc.calls, 1)
}
