package codec

import (
	"bytes"
	"context"
)

// encoderSlot is one unit of codec concurrency. With caching on, the scratch
// buffer keeps its capacity between requests.
type encoderSlot struct {
	buf   *bytes.Buffer
	cache bool
}

// scratch returns an empty buffer for one encode.
func (s *encoderSlot) scratch() *bytes.Buffer {
	if !s.cache || s.buf == nil {
		s.buf = new(bytes.Buffer)
	}
	s.buf.Reset()
	return s.buf
}

// Pool bounds concurrent encodes.
type Pool struct {
	slots chan *encoderSlot
	size  int
}

func newPool(size int, cache bool) *Pool {
	p := &Pool{slots: make(chan *encoderSlot, size), size: size}
	for i := 0; i < size; i++ {
		p.slots <- &encoderSlot{cache: cache}
	}
	return p
}

func (p *Pool) acquire(ctx context.Context) (*encoderSlot, error) {
	select {
	case s := <-p.slots:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) release(s *encoderSlot) { p.slots <- s }

// Size returns the number of concurrent encodes allowed.
func (p *Pool) Size() int { return p.size }
