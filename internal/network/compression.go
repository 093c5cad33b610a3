// File: internal/network/compression.go
package network

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// AcceptEncoding is advertised on every request that does not set its own.
const AcceptEncoding = "gzip, deflate, br"

// ErrBodyTooLarge is returned by a response body read past its size cap.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// CompressionMiddleware is an http.RoundTripper that negotiates gzip, deflate
// and brotli, decodes the response body, and caps how many decoded bytes a
// caller can read from it.
type CompressionMiddleware struct {
	Transport http.RoundTripper
	// MaxBodyBytes caps the decoded body. Zero or less means no cap.
	MaxBodyBytes int64
}

// NewCompressionMiddleware wraps transport, defaulting to http.DefaultTransport.
func NewCompressionMiddleware(transport http.RoundTripper, maxBodyBytes int64) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport, MaxBodyBytes: maxBodyBytes}
}

// RoundTrip implements http.RoundTripper.
func (cm *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		// RoundTrippers must not mutate the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", AcceptEncoding)
	}

	resp, err := cm.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := DecompressResponse(resp, cm.MaxBodyBytes); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

// DecompressResponse replaces resp.Body with a reader that undoes every
// Content-Encoding layer, last applied first, and fails with ErrBodyTooLarge
// once more than maxBytes decoded bytes would be returned. The cap applies to
// unencoded bodies too. When any encoding was present the encoding and length
// headers are removed and resp.Uncompressed is set.
//
// On error resp.Body is left untouched and the caller must close it.
func DecompressResponse(resp *http.Response, maxBytes int64) error {
	if resp == nil || resp.Body == nil {
		return nil
	}

	body := &decodedBody{reader: resp.Body, source: resp.Body, limit: maxBytes}
	encodings := contentEncodings(resp.Header)
	for i := len(encodings) - 1; i >= 0; i-- {
		decoder, err := newDecoder(encodings[i], body.reader)
		if err != nil {
			return err
		}
		if decoder == nil {
			continue
		}
		body.reader = decoder
		if c, ok := decoder.(io.Closer); ok {
			body.decoders = append(body.decoders, c)
		}
	}
	resp.Body = body

	if len(encodings) > 0 {
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
		resp.Uncompressed = true
	}
	return nil
}

// newDecoder returns the reader for one encoding layer, or nil for identity.
func newDecoder(encoding string, r io.Reader) (io.Reader, error) {
	switch encoding {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip initialization error: %w", err)
		}
		return zr, nil
	case "deflate":
		return newDeflateReader(r), nil
	case "br":
		return brotli.NewReader(r), nil
	case "identity":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported Content-Encoding layer: %s", encoding)
	}
}

// decodedBody reads through the decoder chain and enforces the size cap.
// Close releases the decoders, innermost last, then the wire body.
type decodedBody struct {
	reader   io.Reader
	source   io.ReadCloser
	decoders []io.Closer
	limit    int64
	read     int64
}

func (b *decodedBody) Read(p []byte) (int, error) {
	if b.limit <= 0 {
		return b.reader.Read(p)
	}
	if b.read >= b.limit {
		// A body of exactly limit bytes is fine; one more byte is not.
		var extra [1]byte
		n, err := b.reader.Read(extra[:])
		if n > 0 {
			return 0, ErrBodyTooLarge
		}
		return 0, err
	}
	if remaining := b.limit - b.read; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := b.reader.Read(p)
	b.read += int64(n)
	return n, err
}

func (b *decodedBody) Close() error {
	var errs []error
	for i := len(b.decoders) - 1; i >= 0; i-- {
		errs = append(errs, b.decoders[i].Close())
	}
	errs = append(errs, b.source.Close())
	return errors.Join(errs...)
}

// contentEncodings flattens repeated and comma separated Content-Encoding values.
func contentEncodings(h http.Header) []string {
	var out []string
	for _, v := range h.Values("Content-Encoding") {
		for _, part := range strings.Split(v, ",") {
			if enc := strings.ToLower(strings.TrimSpace(part)); enc != "" {
				out = append(out, enc)
			}
		}
	}
	return out
}

// newDeflateReader decodes "deflate", which servers send either zlib wrapped
// (RFC 1950) or raw (RFC 1951). The zlib header is sniffed without consuming it.
func newDeflateReader(r io.Reader) io.ReadCloser {
	br := bufio.NewReader(r)
	if header, err := br.Peek(2); err == nil && isZlibHeader(header) {
		if zr, err := zlib.NewReader(br); err == nil {
			return zr
		}
	}
	return flate.NewReader(br)
}

func isZlibHeader(h []byte) bool {
	// CMF: compression method 8 (deflate); CMF*256+FLG must be a multiple of 31.
	return h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}
