package app

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
)

// pngBufferPool reuses encoder state across ticks to reduce GC churn.
type pngBufferPool struct {
	pool sync.Pool
}

func (p *pngBufferPool) Get() *png.EncoderBuffer {
	b, _ := p.pool.Get().(*png.EncoderBuffer)
	return b
}

func (p *pngBufferPool) Put(b *png.EncoderBuffer) {
	p.pool.Put(b)
}

// PNGSink mirrors the latest frame into a file for hosts that poll an image
// path. Readers never see a partial file: each frame is written beside the
// target and renamed over it.
type PNGSink struct {
	path string
	enc  png.Encoder

	mu  sync.Mutex
	buf bytes.Buffer
}

func NewPNGSink(path string) *PNGSink {
	return &PNGSink{
		path: path,
		enc: png.Encoder{
			CompressionLevel: png.BestSpeed,
			BufferPool:       &pngBufferPool{},
		},
	}
}

func (s *PNGSink) Path() string {
	return s.path
}

func (s *PNGSink) Write(frame image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf.Reset()
	if err := s.enc.Encode(&s.buf, frame); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".fwspeed-*.png")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(s.buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
