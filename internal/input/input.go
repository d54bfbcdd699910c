// Package input resolves the three accepted document sources - a filesystem
// path, an https URL, or a raw byte buffer - into a single uniform Source
// value. The rest of the pipeline consumes Sources and never branches on
// where the bytes came from.
package input

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	// pdfHeader is the magic prefix every well-formed PDF starts with.
	pdfHeader = "%PDF-"

	// downloadTimeout bounds how long a URL fetch may take.
	downloadTimeout = 60 * time.Second
)

// Error is a fatal input error: the document could not be acquired or is not
// a PDF at all. Everything past a successful Resolve degrades locally instead
// of raising (see the detector package).
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("input %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Source is a resolved document: its bytes plus a human-readable descriptor
// of where they came from (used only for logging and error messages).
type Source struct {
	Data []byte
	Desc string
}

// Resolver turns CLI arguments and raw values into Sources, enforcing the
// size and header checks that make up the fatal input-error class.
type Resolver struct {
	maxFileSize int64
	client      *http.Client
	stdin       io.Reader
}

// NewResolver creates a resolver that rejects documents larger than
// maxFileSize bytes.
func NewResolver(maxFileSize int64) *Resolver {
	return &Resolver{
		maxFileSize: maxFileSize,
		client:      &http.Client{Timeout: downloadTimeout},
		stdin:       os.Stdin,
	}
}

// Resolve disambiguates a CLI argument by prefix, never by content sniffing:
// "-" reads piped bytes from stdin, "http://" or "https://" downloads, and
// anything else is treated as a filesystem path.
func (r *Resolver) Resolve(arg string) (Source, error) {
	switch {
	case arg == "-":
		data, err := io.ReadAll(io.LimitReader(r.stdin, r.maxFileSize+1))
		if err != nil {
			return Source{}, &Error{Op: "stdin", Err: fmt.Errorf("failed to read piped bytes: %w", err)}
		}
		return r.FromBytes(data)
	case strings.HasPrefix(arg, "https://") || strings.HasPrefix(arg, "http://"):
		return r.FromURL(arg)
	default:
		return r.FromPath(arg)
	}
}

// FromPath reads a document from the filesystem.
func (r *Resolver) FromPath(path string) (Source, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Source{}, &Error{Op: "path", Err: fmt.Errorf("file does not exist: %s", path)}
	}
	if err != nil {
		return Source{}, &Error{Op: "path", Err: fmt.Errorf("cannot access file: %w", err)}
	}
	if info.IsDir() {
		return Source{}, &Error{Op: "path", Err: fmt.Errorf("path is a directory, not a file: %s", path)}
	}
	if info.Size() > r.maxFileSize {
		return Source{}, &Error{Op: "path", Err: fmt.Errorf("file too large: %d bytes (max: %d bytes)",
			info.Size(), r.maxFileSize)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, &Error{Op: "path", Err: fmt.Errorf("failed to read file: %w", err)}
	}

	src := Source{Data: data, Desc: path}
	if err := r.validate(src); err != nil {
		return Source{}, err
	}
	return src, nil
}

// FromURL downloads a document into memory before processing.
func (r *Resolver) FromURL(url string) (Source, error) {
	resp, err := r.client.Get(url)
	if err != nil {
		return Source{}, &Error{Op: "url", Err: fmt.Errorf("download failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Source{}, &Error{Op: "url", Err: fmt.Errorf("download failed: %s returned %s", url, resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxFileSize+1))
	if err != nil {
		return Source{}, &Error{Op: "url", Err: fmt.Errorf("download failed: %w", err)}
	}

	src := Source{Data: data, Desc: url}
	if err := r.validate(src); err != nil {
		return Source{}, err
	}
	return src, nil
}

// FromBytes wraps an in-memory buffer. The buffer is always interpreted as
// file content, never as a path string.
func (r *Resolver) FromBytes(data []byte) (Source, error) {
	src := Source{Data: data, Desc: "<bytes>"}
	if err := r.validate(src); err != nil {
		return Source{}, err
	}
	return src, nil
}

// validate applies the checks shared by every source kind.
func (r *Resolver) validate(src Source) error {
	if int64(len(src.Data)) > r.maxFileSize {
		return &Error{Op: "validate", Err: fmt.Errorf("document too large: %d bytes (max: %d bytes)",
			len(src.Data), r.maxFileSize)}
	}
	if len(src.Data) < len(pdfHeader) || !bytes.HasPrefix(src.Data, []byte(pdfHeader)) {
		return &Error{Op: "validate", Err: fmt.Errorf("%s is not a PDF document", src.Desc)}
	}
	return nil
}
