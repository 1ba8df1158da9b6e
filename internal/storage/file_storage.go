// internal/storage/file_storage.go
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/ch2church/worship-storyboard/internal/errors"
	"github.com/ch2church/worship-storyboard/internal/utils"
)

// FileStorage keeps blobs as files under BaseDir.
type FileStorage struct {
	BaseDir string

	fileLocks sync.Map // path -> *sync.RWMutex
}

// NewFileStorage creates the base directory if needed.
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &FileStorage{BaseDir: baseDir}, nil
}

func (fs *FileStorage) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := fs.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

func (fs *FileStorage) resolve(p string) (string, string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", "", err
	}
	return clean, filepath.Join(fs.BaseDir, filepath.FromSlash(clean)), nil
}

// Get reads the file at p.
func (fs *FileStorage) Get(ctx context.Context, p string) ([]byte, error) {
	clean, fullPath, err := fs.resolve(p)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock := fs.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	content, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("no blob at %s", clean), err)
		}
		return nil, fmt.Errorf("read %s: %w", clean, err)
	}
	return content, nil
}

// Put writes data atomically through a temp file and rename.
func (fs *FileStorage) Put(ctx context.Context, p string, data []byte, message string) (string, error) {
	clean, fullPath, err := fs.resolve(p)
	if err != nil {
		return "", err
	}
	if clean == "" || clean == "." {
		return "", apperrors.NewValidationError("path", "empty blob path", nil)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	previous := ""
	if old, err := os.ReadFile(fullPath); err == nil {
		previous = VersionTag(old)
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", apperrors.NewRemoteWriteError(clean, 0, fmt.Errorf("create directory: %w", err))
	}

	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return "", apperrors.NewRemoteWriteError(clean, 0, fmt.Errorf("write temp file: %w", err))
	}
	if err := os.Rename(tempPath, fullPath); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil {
			utils.GetLogger().Warn("failed to clean up temp file", map[string]interface{}{
				"path":  tempPath,
				"error": removeErr.Error(),
			})
		}
		return "", apperrors.NewRemoteWriteError(clean, 0, fmt.Errorf("rename temp file: %w", err))
	}

	version := VersionTag(data)
	utils.GetLogger().Debug("blob written", map[string]interface{}{
		"path":     clean,
		"previous": previous,
		"version":  version,
		"message":  message,
	})
	return version, nil
}

// List returns the children of the directory at p.
func (fs *FileStorage) List(ctx context.Context, p string) ([]Entry, error) {
	clean, fullPath, err := fs.resolve(p)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("no directory at %s", clean), err)
		}
		return nil, fmt.Errorf("list %s: %w", clean, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if filepath.Ext(de.Name()) == ".tmp" {
			continue
		}
		kind := EntryFile
		if de.IsDir() {
			kind = EntryDir
		}
		entries = append(entries, Entry{Name: de.Name(), Path: Join(clean, de.Name()), Kind: kind})
	}
	sortEntries(entries)
	return entries, nil
}

