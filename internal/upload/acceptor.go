package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"rtodocs/internal/storage"
)

// FileField is the multipart field carrying the document bytes.
const FileField = "file"

// DefaultMaxBytes is the per-file limit when none is configured (5 MiB).
const DefaultMaxBytes int64 = 5 << 20

const (
	maxFieldBytes = 4 << 10
	maxFields     = 32
	keyAttempts   = 3
)

var (
	ErrNoFile        = errors.New("file is required")
	ErrInvalidFile   = errors.New("only jpeg, jpg, png and pdf files are allowed")
	ErrTooLarge      = errors.New("file exceeds the maximum allowed size")
	ErrMultipleFiles = errors.New("only one file may be uploaded per request")
	ErrMalformed     = errors.New("malformed multipart body")
)

var allowedExtensions = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".pdf":  true,
}

var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"application/pdf": true,
}

// StoredFile describes bytes that were written to storage.
type StoredFile struct {
	Key          string
	OriginalName string
	MimeType     string
	Size         int64
}

// Result is a fully consumed multipart body: at most one stored file plus the text fields.
type Result struct {
	File   *StoredFile
	Fields map[string]string
}

// Field returns the trimmed value of a text field.
func (r *Result) Field(name string) string {
	return strings.TrimSpace(r.Fields[name])
}

// Acceptor streams a multipart body into storage. The file part is checked
// against the allow-list before any byte is written and is capped at MaxBytes
// while streaming. Whenever Accept returns an error, the file it stored (if
// any) has already been removed.
type Acceptor struct {
	store    storage.Storage
	maxBytes int64
	now      func() time.Time
	randInt  func() int64

	// OnCleanupError is called when a stored file could not be removed.
	OnCleanupError func(key string, err error)
}

// NewAcceptor returns an Acceptor writing to store. maxBytes <= 0 means DefaultMaxBytes.
func NewAcceptor(store storage.Storage, maxBytes int64) *Acceptor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Acceptor{
		store:    store,
		maxBytes: maxBytes,
		now:      time.Now,
		randInt:  func() int64 { return rand.Int64N(1_000_000_000) },
	}
}

// MaxBytes is the largest file Accept stores.
func (a *Acceptor) MaxBytes() int64 {
	return a.maxBytes
}

// Accept reads every part of the body. Text fields are collected; the file
// part is validated and stored under a generated key.
func (a *Acceptor) Accept(ctx context.Context, body io.Reader, boundary string) (*Result, error) {
	if boundary == "" {
		return nil, ErrMalformed
	}
	mr := multipart.NewReader(body, boundary)
	res := &Result{Fields: make(map[string]string)}

	fail := func(err error) (*Result, error) {
		if res.File != nil {
			a.Discard(ctx, res.File.Key)
		}
		return nil, err
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(fmt.Errorf("%w: %v", ErrMalformed, err))
		}

		if part.FormName() == FileField && part.FileName() != "" {
			if res.File != nil {
				part.Close()
				return fail(ErrMultipleFiles)
			}
			stored, err := a.storeFile(ctx, part)
			part.Close()
			if err != nil {
				return fail(err)
			}
			res.File = stored
			continue
		}

		name := part.FormName()
		if name == "" {
			part.Close()
			continue
		}
		if len(res.Fields) >= maxFields {
			part.Close()
			return fail(fmt.Errorf("%w: too many fields", ErrMalformed))
		}
		value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
		part.Close()
		if err != nil {
			return fail(fmt.Errorf("%w: %v", ErrMalformed, err))
		}
		if len(value) > maxFieldBytes {
			return fail(fmt.Errorf("%w: field %s too long", ErrMalformed, name))
		}
		if _, seen := res.Fields[name]; !seen {
			res.Fields[name] = string(value)
		}
	}

	return res, nil
}

// Discard removes a stored file. Failures go to OnCleanupError, never to the caller.
func (a *Acceptor) Discard(ctx context.Context, key string) {
	if err := a.store.Delete(context.WithoutCancel(ctx), key); err != nil && a.OnCleanupError != nil {
		a.OnCleanupError(key, err)
	}
}

func (a *Acceptor) storeFile(ctx context.Context, part *multipart.Part) (*StoredFile, error) {
	original := part.FileName()
	ext := strings.ToLower(filepath.Ext(original))
	mimeType := declaredMimeType(part.Header.Get("Content-Type"))
	if !allowedExtensions[ext] || !allowedMimeTypes[mimeType] {
		return nil, ErrInvalidFile
	}

	lr := &limitedReader{r: part, remaining: a.maxBytes}
	opts := storage.PutObjectOptions{
		Size:        -1,
		ContentType: mimeType,
		Metadata:    map[string]string{"original-filename": original},
	}

	var lastErr error
	for range keyAttempts {
		key := a.generateKey(ext)
		info, err := a.store.Put(ctx, key, lr, opts)
		if err == nil {
			return &StoredFile{Key: key, OriginalName: original, MimeType: mimeType, Size: info.Size}, nil
		}
		if lr.exceeded {
			return nil, ErrTooLarge
		}
		if lr.readErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, lr.readErr)
		}
		// a taken key is detected before any byte is read, so retrying is safe
		if !errors.Is(err, storage.ErrObjectExists) {
			return nil, fmt.Errorf("store file: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("store file: %w", lastErr)
}

// generateKey returns <epoch-ms>-<random-int><ext>.
func (a *Acceptor) generateKey(ext string) string {
	return fmt.Sprintf("%d-%d%s", a.now().UnixMilli(), a.randInt(), ext)
}

func declaredMimeType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

// limitedReader fails with ErrTooLarge as soon as more than remaining bytes are read.
// It remembers read failures of the body so they are not blamed on storage.
type limitedReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
	readErr   error
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.exceeded {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		l.readErr = err
	}
	l.remaining -= int64(n)
	if l.remaining < 0 {
		l.exceeded = true
		return 0, ErrTooLarge
	}
	return n, err
}
