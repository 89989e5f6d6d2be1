package http

import (
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// maxDecoderMemory bounds the window a single zstd frame may request.
const maxDecoderMemory = 64 << 20

// decodeBody wraps resp.Body according to its Content-Encoding. It reports
// whether the body was encoded.
func (t *Transport) decodeBody(resp *nethttp.Response) (io.ReadCloser, bool, error) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
		return resp.Body, false, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, true, fmt.Errorf("open gzip body: %w", err)
		}
		return &decodedBody{Reader: zr, closers: []io.Closer{zr, resp.Body}}, true, nil
	case "zstd":
		pool := t.zstd
		if pool == nil {
			pool = newDecompressPool()
		}
		dec, release, err := pool.get(resp.Body)
		if err != nil {
			return nil, true, fmt.Errorf("open zstd body: %w", err)
		}
		return &decodedBody{Reader: dec, release: release, closers: []io.Closer{resp.Body}}, true, nil
	default:
		return nil, true, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

type decodedBody struct {
	io.Reader
	release func()
	closers []io.Closer
	once    sync.Once
}

func (b *decodedBody) Close() error {
	var err error
	b.once.Do(func() {
		if b.release != nil {
			b.release()
		}
		for _, c := range b.closers {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}

// decompressPool keeps zstd decoders for reuse across responses.
type decompressPool struct {
	pool sync.Pool
}

func newDecompressPool() *decompressPool {
	p := &decompressPool{}
	p.pool.New = func() any {
		dec, err := newDecoder(nil)
		if err != nil {
			return nil
		}
		return dec
	}
	return p
}

// get returns a decoder reading from r and a function returning it to the pool.
func (p *decompressPool) get(r io.Reader) (*zstd.Decoder, func(), error) {
	dec, ok := p.pool.Get().(*zstd.Decoder)
	if !ok || dec == nil {
		fresh, err := newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return fresh, fresh.Close, nil
	}

	if err := dec.Reset(r); err != nil {
		dec.Close()
		fresh, err := newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return fresh, fresh.Close, nil
	}

	return dec, func() {
		_ = dec.Reset(nil) //nolint:errcheck // clearing state before pool return
		p.pool.Put(dec)
	}, nil
}

func newDecoder(r io.Reader) (*zstd.Decoder, error) {
	return zstd.NewReader(r,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(maxDecoderMemory),
	)
}
