// internal/browser/dom/compression.go
package dom

import (
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// Pools for decompression readers; documents are often loaded in parallel.
var (
	gzipReaderPool = sync.Pool{
		New: func() interface{} { return new(gzip.Reader) },
	}
	brotliReaderPool = sync.Pool{
		New: func() interface{} { return brotli.NewReader(nil) },
	}
)

var emptyReader = strings.NewReader("")

// EncodingFromPath maps a saved document's extension to its content
// encoding: .gz is gzip, .br is brotli, .zz is deflate. Anything else is
// identity.
func EncodingFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return "gzip"
	case ".br":
		return "br"
	case ".zz":
		return "deflate"
	}
	return "identity"
}

// Decompress wraps r in a reader for encoding. Closing the result returns
// pooled readers but does not close r.
func Decompress(r io.Reader, encoding string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		zr := gzipReaderPool.Get().(*gzip.Reader)
		if err := zr.Reset(r); err != nil {
			gzipReaderPool.Put(zr)
			return nil, fmt.Errorf("gzip initialization error: %w", err)
		}
		return &pooledReader{Reader: zr, release: func() error {
			err := zr.Close()
			_ = zr.Reset(emptyReader)
			gzipReaderPool.Put(zr)
			return err
		}}, nil

	case "br":
		br := brotliReaderPool.Get().(*brotli.Reader)
		if err := br.Reset(r); err != nil {
			brotliReaderPool.Put(br)
			return nil, fmt.Errorf("brotli initialization error: %w", err)
		}
		return &pooledReader{Reader: br, release: func() error {
			_ = br.Reset(emptyReader)
			brotliReaderPool.Put(br)
			return nil
		}}, nil

	case "deflate":
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("deflate initialization error: %w", err)
		}
		return zr, nil

	case "identity", "":
		return io.NopCloser(r), nil
	}
	return nil, fmt.Errorf("unsupported content encoding: %s", encoding)
}

// pooledReader hands its decoder back to the pool exactly once.
type pooledReader struct {
	io.Reader
	release func() error
}

func (p *pooledReader) Close() error {
	if p.release == nil {
		return errors.New("reader already closed")
	}
	err := p.release()
	p.release = nil
	p.Reader = emptyReader
	return err
}
