package api

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sydlexius/camwatch/internal/camera"
)

const proxyChunkSize = 32 << 10

// handleProxyCamera relays the current upstream image for a camera. Bytes
// are flushed to the client as they arrive. When the upstream fails before
// the first byte the placeholder is served with 502 instead.
// GET /proxy/camera?code=NNNNNN
func (r *Router) handleProxyCamera(w http.ResponseWriter, req *http.Request) {
	code, err := camera.ParseCode(req.URL.Query().Get("code"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid camera code")
		return
	}
	log := r.logger.With(slog.String("code", string(code)))

	if r.upstream == nil {
		r.servePlaceholder(w)
		return
	}
	img, err := r.upstream.Fetch(req.Context(), code)
	if err != nil {
		log.Warn("proxy fetch failed", slog.Any("error", err))
		r.servePlaceholder(w)
		return
	}
	defer img.Close() //nolint:errcheck

	br := bufio.NewReaderSize(img.Body, proxyChunkSize)
	if _, err := br.Peek(1); err != nil {
		log.Warn("proxy upstream sent no data", slog.Any("error", err))
		r.servePlaceholder(w)
		return
	}

	contentType := img.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	if img.ContentLength > 0 && img.ContentLength <= r.proxy.MaxBytes {
		h.Set("Content-Length", strconv.FormatInt(img.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := copyFlush(w, io.LimitReader(br, r.proxy.MaxBytes+1))
	switch {
	case err != nil:
		// Headers are gone; the client sees a truncated body.
		r.recorder.ProxyFailed()
		log.Warn("proxy stream interrupted", slog.Int64("bytes", n), slog.Any("error", err))
	case n > r.proxy.MaxBytes:
		r.recorder.ProxyFailed()
		log.Warn("proxy image exceeded size limit", slog.Int64("limit", r.proxy.MaxBytes))
		panic(http.ErrAbortHandler)
	default:
		r.recorder.ProxySucceeded()
	}
}

// servePlaceholder answers with the offline image and 502.
func (r *Router) servePlaceholder(w http.ResponseWriter) {
	r.recorder.ProxyFailed()
	h := w.Header()
	h.Set("Content-Type", r.placeholder.ContentType)
	h.Set("Content-Length", strconv.Itoa(r.placeholder.Len()))
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusBadGateway)
	w.Write(r.placeholder.Bytes()) //nolint:errcheck
}

// copyFlush copies src to w, flushing after each chunk so the client
// receives image data as soon as the upstream produces it.
func copyFlush(w http.ResponseWriter, src io.Reader) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, proxyChunkSize)
	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return written, ferr
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
