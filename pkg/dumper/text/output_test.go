package text

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenOutput(t *testing.T) {
	dir := t.TempDir()

	for _, method := range []string{CompressNone, CompressGzip, CompressZstd} {
		path := filepath.Join(dir, "dump-"+method+".sql")

		w, err := OpenOutput(path, method)
		require.NoError(t, err)
		_, err = io.WriteString(w, "SELECT 1;\n")
		require.NoError(t, err)
		require.NoError(t, w.Close())

		f, err := os.Open(path)
		require.NoError(t, err)

		var r io.Reader = f
		switch method {
		case CompressGzip:
			gr, err := gzip.NewReader(f)
			require.NoError(t, err)
			r = gr
		case CompressZstd:
			zr, err := zstd.NewReader(f)
			require.NoError(t, err)
			defer zr.Close()
			r = zr
		}

		content, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "SELECT 1;\n", string(content), method)
		f.Close()
	}
}

func TestOpenOutputRejectsUnsupportedCompression(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.sql")

	_, err := OpenOutput(path, "Bzip2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")

	_, err = OpenOutput(path, "lz4")
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no file is created")
}

func TestCompressKeepsCase(t *testing.T) {
	buf := new(bytes.Buffer)

	w, err := Compress(nopCloser{buf}, "gzip")
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	gr, err := gzip.NewReader(buf)
	require.NoError(t, err)
	content, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))
}
