package api

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sydlexius/camwatch/internal/camera"
)

// StaticFiles serves the public directory. Each file's content hash is
// used as its ETag, and requests carrying a matching ?v= parameter get
// immutable cache headers.
type StaticFiles struct {
	mu     sync.RWMutex
	hashes map[string]string // path -> content hash
	dir    string
	logger *slog.Logger
}

// NewStaticFiles creates a StaticFiles server for dir. An empty dir serves
// nothing.
func NewStaticFiles(dir string, logger *slog.Logger) *StaticFiles {
	sf := &StaticFiles{
		hashes: make(map[string]string),
		dir:    dir,
		logger: logger,
	}
	if dir != "" {
		sf.scan()
	}
	return sf
}

// Dir returns the public directory.
func (sf *StaticFiles) Dir() string {
	return sf.dir
}

// Handler returns an HTTP handler for everything under basePath.
// /camera/NNNNNN is answered with camera.html.
func (sf *StaticFiles) Handler(basePath string) http.Handler {
	if sf.dir == "" {
		return http.NotFoundHandler()
	}
	fileServer := http.FileServer(http.Dir(sf.dir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rel := "/" + strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, basePath), "/")
		if rest, ok := strings.CutPrefix(rel, "/camera/"); ok {
			if _, err := camera.ParseCode(rest); err != nil {
				http.Redirect(w, r, basePath+"/camera.html", http.StatusFound)
				return
			}
			rel = "/camera.html"
		}
		rel = path.Clean(rel)

		lookup := rel
		if strings.HasSuffix(lookup, "/") {
			lookup += "index.html"
		}
		sf.mu.RLock()
		hash, known := sf.hashes[lookup]
		sf.mu.RUnlock()

		switch v := r.URL.Query().Get("v"); {
		case v != "" && known && strings.HasPrefix(hash, v):
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		case v != "":
			w.Header().Set("Cache-Control", "public, max-age=3600")
		default:
			w.Header().Set("Cache-Control", "public, max-age=300")
		}
		if known {
			w.Header().Set("ETag", `"`+hash[:16]+`"`)
		}

		r2 := r.Clone(r.Context())
		r2.URL.Path = rel
		r2.URL.RawPath = ""
		fileServer.ServeHTTP(w, r2)
	})
}

// Rescan rehashes the public directory.
func (sf *StaticFiles) Rescan() {
	sf.scan()
}

func (sf *StaticFiles) scan() {
	hashes := make(map[string]string)

	filepath.WalkDir(sf.dir, func(p string, d fs.DirEntry, err error) error { //nolint:errcheck
		if err != nil || d.IsDir() {
			return nil
		}

		data, err := os.ReadFile(p) //nolint:gosec // walking the configured public dir
		if err != nil {
			sf.logger.Warn("failed to hash static file", "path", p, "error", err)
			return nil
		}

		h := sha256.Sum256(data)
		rel, err := filepath.Rel(sf.dir, p)
		if err != nil {
			return nil
		}
		hashes["/"+filepath.ToSlash(rel)] = hex.EncodeToString(h[:])
		return nil
	})

	sf.mu.Lock()
	sf.hashes = hashes
	sf.mu.Unlock()

	sf.logger.Info("public files scanned", slog.String("dir", sf.dir), slog.Int("files", len(hashes)))
}
