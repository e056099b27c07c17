package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/reducekit/asset-cache/backend"
	"github.com/reducekit/asset-cache/store"
)

// httpSink streams an artifact file into an HTTP response. Content
// type, range requests and HEAD handling come from http.ServeContent.
type httpSink struct {
	w http.ResponseWriter
	r *http.Request
}

func (s *httpSink) TransmitFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", path, backend.ErrNotFound)
		}
		return fmt.Errorf("opening artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stating artifact: %w", err)
	}

	// Artifact names carry a content signature, so the bytes for a
	// given URL never change.
	s.w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

	http.ServeContent(s.w, s.r, filepath.Base(path), info.ModTime(), f)
	return nil
}

// Compile-time interface check
var _ store.Sink = (*httpSink)(nil)
