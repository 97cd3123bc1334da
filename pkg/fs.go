package bitwatch

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Filesystem is the directory and file access the engine needs. Permission
// and I/O failures must be returned as errors, never reported as absent.
type Filesystem interface {
	// Exists reports whether path is present and, if so, what kind it is
	Exists(path string) (kind NodeKind, exists bool, err error)
	// ListChildren returns the names of the immediate sub-directories and files
	ListChildren(path string) (dirs []string, files []string, err error)
	// OpenReadStream opens a file for streaming its content
	OpenReadStream(path string) (io.ReadCloser, error)
}

// OSFilesystem implements Filesystem on the local operating system
type OSFilesystem struct {
	// SymlinkMode is SymlinkModeNone (default) or SymlinkModeAll, matched
	// case-insensitively. In "none" mode symlinked directories are left out
	// of listings; symlinked files are always listed and their target content
	// is hashed. In "all" mode a symlinked directory is followed unless it
	// resolves to the directory being listed or one of its ancestors.
	SymlinkMode string
}

// NewOSFilesystem creates an OS-backed filesystem with the given symlink mode
func NewOSFilesystem(symlinkMode string) *OSFilesystem {
	return &OSFilesystem{SymlinkMode: normaliseSymlinkMode(symlinkMode)}
}

func normaliseSymlinkMode(mode string) string {
	return strings.ToLower(strings.TrimSpace(mode))
}

// Exists follows symlinks; a dangling symlink is reported absent
func (f *OSFilesystem) Exists(path string) (NodeKind, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if isAbsent(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if info.IsDir() {
		return KindDirectory, true, nil
	}
	return KindFile, true, nil
}

// ListChildren enumerates path afresh on every call. Entries that are
// neither directories nor regular files (sockets, devices, FIFOs, dangling
// symlinks) are left out.
func (f *OSFilesystem) ListChildren(path string) ([]string, []string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, nil, err
	}

	var dirs, files []string
	for _, entry := range entries {
		mode := entry.Type()

		if mode&fs.ModeSymlink != 0 {
			target, err := os.Stat(filepath.Join(path, entry.Name()))
			if err != nil {
				continue // Dangling or unreadable symlink
			}
			if target.IsDir() {
				if normaliseSymlinkMode(f.SymlinkMode) == SymlinkModeAll && !loopsBack(path, entry.Name()) {
					dirs = append(dirs, entry.Name())
				}
				continue
			}
			if target.Mode().IsRegular() {
				files = append(files, entry.Name())
			}
			continue
		}

		switch {
		case mode.IsDir():
			dirs = append(dirs, entry.Name())
		case mode.IsRegular():
			files = append(files, entry.Name())
		}
	}
	return dirs, files, nil
}

// loopsBack reports whether the directory symlink name inside dir resolves
// to dir itself or to one of its ancestors. Ancestors are compared by their
// resolved paths, so a cycle through several links is caught on its second
// pass. A link that cannot be resolved counts as looping.
func loopsBack(dir, name string) bool {
	target, err := filepath.EvalSymlinks(filepath.Join(dir, name))
	if err != nil {
		return true
	}
	for p := filepath.Clean(dir); ; p = filepath.Dir(p) {
		if resolved, err := filepath.EvalSymlinks(p); err == nil && resolved == target {
			return true
		}
		if p == filepath.Dir(p) {
			return false
		}
	}
}

// OpenReadStream opens path for reading
func (f *OSFilesystem) OpenReadStream(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// isAbsent reports whether err means the path does not exist
func isAbsent(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, unix.ENOTDIR)
}

// describeFSError returns a short classification of a filesystem error for
// outcome details
func describeFSError(err error) string {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return "permission denied"
	case isAbsent(err):
		return "vanished"
	case errors.Is(err, unix.EIO):
		return "i/o error"
	default:
		return "unreadable"
	}
}
