// internal/network/compression_test.go
package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{"simulation_id": 42, "agent_count": 3}`

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zlibBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func rawDeflateBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func brotliBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newEncodedResponse(encoding string, body []byte) *http.Response {
	resp := &http.Response{
		StatusCode:    http.StatusOK,
		Header:        make(http.Header),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
	if encoding != "" {
		resp.Header.Set("Content-Encoding", encoding)
	}
	resp.Header.Set("Content-Length", "123")
	return resp
}

func TestDecompressResponse_Encodings(t *testing.T) {
	payload := []byte(samplePayload)
	testCases := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{"gzip", "gzip", gzipBytes(t, payload)},
		{"deflate zlib wrapped", "deflate", zlibBytes(t, payload)},
		{"deflate raw", "deflate", rawDeflateBytes(t, payload)},
		{"brotli", "br", brotliBytes(t, payload)},
		{"identity", "identity", payload},
		{"mixed case header", "GZip", gzipBytes(t, payload)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := newEncodedResponse(tc.encoding, tc.body)
			require.NoError(t, DecompressResponse(resp, 0))

			got, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.NoError(t, resp.Body.Close())

			assert.Equal(t, samplePayload, string(got))
			assert.Empty(t, resp.Header.Get("Content-Encoding"))
			assert.Empty(t, resp.Header.Get("Content-Length"))
			assert.Equal(t, int64(-1), resp.ContentLength)
			assert.True(t, resp.Uncompressed)
		})
	}
}

func TestDecompressResponse_LayeredEncodings(t *testing.T) {
	// Applied in order: gzip first, then brotli on top.
	body := brotliBytes(t, gzipBytes(t, []byte(samplePayload)))
	resp := newEncodedResponse("gzip, br", body)

	require.NoError(t, DecompressResponse(resp, 0))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, samplePayload, string(got))
	assert.NoError(t, resp.Body.Close())
}

func TestDecompressResponse_NoEncoding(t *testing.T) {
	resp := newEncodedResponse("", []byte(samplePayload))
	require.NoError(t, DecompressResponse(resp, 0))
	assert.False(t, resp.Uncompressed)
	assert.Equal(t, "123", resp.Header.Get("Content-Length"))

	assert.NoError(t, DecompressResponse(nil, 0))
}

// closeRecorder notes whether the wire body was closed.
type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestDecompressResponse_SizeCap(t *testing.T) {
	payload := []byte(samplePayload)
	limit := int64(len(payload))

	t.Run("body of exactly the cap is read in full", func(t *testing.T) {
		resp := newEncodedResponse("", payload)
		require.NoError(t, DecompressResponse(resp, limit))
		got, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, samplePayload, string(got))
	})

	t.Run("plain body over the cap", func(t *testing.T) {
		resp := newEncodedResponse("", append(append([]byte{}, payload...), ' '))
		require.NoError(t, DecompressResponse(resp, limit))
		_, err := io.ReadAll(resp.Body)
		assert.ErrorIs(t, err, ErrBodyTooLarge)
	})

	t.Run("compressed body that expands past the cap", func(t *testing.T) {
		expanded := bytes.Repeat([]byte{'0'}, 1<<20)
		wire := &closeRecorder{Reader: bytes.NewReader(gzipBytes(t, expanded))}
		resp := newEncodedResponse("gzip", nil)
		resp.Body = wire

		require.NoError(t, DecompressResponse(resp, 4<<10))
		got, err := io.ReadAll(resp.Body)
		assert.ErrorIs(t, err, ErrBodyTooLarge)
		assert.Len(t, got, 4<<10)

		require.NoError(t, resp.Body.Close())
		assert.True(t, wire.closed)
	})

	t.Run("zero disables the cap", func(t *testing.T) {
		expanded := bytes.Repeat([]byte{'1'}, 64<<10)
		resp := newEncodedResponse("br", brotliBytes(t, expanded))
		require.NoError(t, DecompressResponse(resp, 0))
		got, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Len(t, got, len(expanded))
	})
}

func TestCompressionMiddleware_EnforcesCap(t *testing.T) {
	encoded := gzipBytes(t, bytes.Repeat([]byte("x"), 32<<10))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(encoded)
	}))
	defer server.Close()

	client := &http.Client{Transport: NewCompressionMiddleware(&http.Transport{DisableCompression: true}, 1<<10)}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	_, err = io.ReadAll(resp.Body)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestDecompressResponse_Errors(t *testing.T) {
	t.Run("unsupported encoding", func(t *testing.T) {
		resp := newEncodedResponse("zstd", []byte("whatever"))
		err := DecompressResponse(resp, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported Content-Encoding layer: zstd")
	})

	t.Run("corrupt gzip header", func(t *testing.T) {
		resp := newEncodedResponse("gzip", []byte("not gzip at all"))
		err := DecompressResponse(resp, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "gzip initialization error")
	})
}

func TestCompressionMiddleware_RoundTrip(t *testing.T) {
	encoded := brotliBytes(t, []byte(samplePayload))
	seenAcceptEncoding := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAcceptEncoding <- r.Header.Get("Accept-Encoding")
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(encoded)
	}))
	defer server.Close()

	client := &http.Client{Transport: NewCompressionMiddleware(&http.Transport{DisableCompression: true}, 0)}
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, samplePayload, string(body))
	assert.Equal(t, AcceptEncoding, <-seenAcceptEncoding)
	assert.Empty(t, req.Header.Get("Accept-Encoding"), "the caller's request must not be mutated")
}

func TestCompressionMiddleware_RespectsCallerAcceptEncoding(t *testing.T) {
	seen := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("Accept-Encoding")
		_, _ = w.Write([]byte("plain"))
	}))
	defer server.Close()

	client := &http.Client{Transport: NewCompressionMiddleware(nil, 0)}
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := client.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, "identity", <-seen)
	assert.True(t, strings.HasPrefix(string(body), "plain"))
}

func TestCompressionMiddleware_DecodeFailureClosesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write([]byte("garbage"))
	}))
	defer server.Close()

	client := &http.Client{Transport: NewCompressionMiddleware(&http.Transport{DisableCompression: true}, 0)}
	resp, err := client.Get(server.URL)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "failed to initialize response decompression")
}
