package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// diskStorage keeps objects as files in a single directory.
type diskStorage struct {
	fs afero.Fs
}

// NewDisk stores objects under dir on the local file system, creating it if absent.
func NewDisk(dir string) (Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &diskStorage{fs: afero.NewBasePathFs(osFs, dir)}, nil
}

// NewDiskFs stores objects at the root of fs. Tests pass an afero.MemMapFs.
func NewDiskFs(fs afero.Fs) Storage {
	return &diskStorage{fs: fs}
}

func validKey(key string) bool {
	return key != "" && key != "." && key != ".." && !strings.ContainsAny(key, `/\`)
}

// Put creates the file exclusively and removes it again if the copy fails.
func (d *diskStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	if !validKey(key) {
		return ObjectInfo{}, ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}

	f, err := d.fs.OpenFile(key, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ObjectInfo{}, ErrObjectExists
		}
		return ObjectInfo{}, fmt.Errorf("create file: %w", err)
	}

	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = d.fs.Remove(key)
		if copyErr != nil {
			return ObjectInfo{}, copyErr
		}
		return ObjectInfo{}, fmt.Errorf("close file: %w", closeErr)
	}

	info := ObjectInfo{
		Key:         key,
		Size:        n,
		ContentType: opt.ContentType,
		Metadata:    opt.Metadata,
	}
	if st, err := d.fs.Stat(key); err == nil {
		info.LastModified = st.ModTime()
	}
	return info, nil
}

// Get checks that the file exists before opening it.
func (d *diskStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if !validKey(key) {
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	st, err := d.fs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ObjectInfo{}, ErrObjectNotFound
		}
		return nil, ObjectInfo{}, err
	}
	if st.IsDir() {
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	f, err := d.fs.Open(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ObjectInfo{}, ErrObjectNotFound
		}
		return nil, ObjectInfo{}, err
	}
	return f, ObjectInfo{Key: key, Size: st.Size(), LastModified: st.ModTime()}, nil
}

func (d *diskStorage) Delete(_ context.Context, key string) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	if err := d.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *diskStorage) List(_ context.Context) ([]string, error) {
	entries, err := afero.ReadDir(d.fs, ".")
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			keys = append(keys, e.Name())
		}
	}
	return keys, nil
}
