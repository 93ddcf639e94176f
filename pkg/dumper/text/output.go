package text

import (
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/palantir/stacktrace"
)

// Compression methods of the dump output.
const (
	CompressNone  = "None"
	CompressGzip  = "Gzip"
	CompressZstd  = "Zstd"
	CompressBzip2 = "Bzip2"
)

type (
	// output closes a compressor before the file it writes to.
	output struct {
		io.Writer
		closers []io.Closer
	}

	nopCloser struct {
		io.Writer
	}
)

func (o *output) Close() error {
	var firstErr error
	for _, c := range o.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (nopCloser) Close() error {
	return nil
}

// OpenOutput opens the dump destination: path, or stdout when path is empty, compressed
// with the given method.
func OpenOutput(path string, compress string) (io.WriteCloser, error) {
	method, err := compressionMethod(compress)
	if err != nil {
		return nil, err
	}

	var dst io.WriteCloser = nopCloser{os.Stdout}
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return nil, stacktrace.Propagate(err, "could not create result file %s", path)
		}
		dst = f
	}

	return Compress(dst, method)
}

// Compress wraps dst with the compressor of method. Closing the result closes dst.
func Compress(dst io.WriteCloser, method string) (io.WriteCloser, error) {
	method, err := compressionMethod(method)
	if err != nil {
		dst.Close()
		return nil, err
	}

	switch method {
	case CompressGzip:
		zw := gzip.NewWriter(dst)
		return &output{Writer: zw, closers: []io.Closer{zw, dst}}, nil
	case CompressZstd:
		zw, err := zstd.NewWriter(dst)
		if err != nil {
			dst.Close()
			return nil, stacktrace.Propagate(err, "could not create zstd writer")
		}
		return &output{Writer: zw, closers: []io.Closer{zw, dst}}, nil
	default:
		return dst, nil
	}
}

func compressionMethod(compress string) (string, error) {
	switch strings.ToLower(compress) {
	case "", "none":
		return CompressNone, nil
	case "gzip":
		return CompressGzip, nil
	case "zstd":
		return CompressZstd, nil
	case "bzip2":
		return "", stacktrace.NewError("compression %s is not supported, use %s or %s", CompressBzip2, CompressGzip, CompressZstd)
	default:
		return "", stacktrace.NewError("unknown compression method %q", compress)
	}
}
