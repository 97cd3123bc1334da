package bitwatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/google/vectorio"
	"golang.org/x/sys/unix"
)

// iovMax is the per-call iovec limit; Linux and the BSDs all use 1024
const iovMax = 1024

// manifestLine formats one entry in BSD tagged checksum format
func manifestLine(node Node) []byte {
	return []byte(fmt.Sprintf("%s (%s) = %s\n", node.HashAlgorithm, node.RelativePath, node.ContentHash))
}

// manifestNodes returns the hashed file nodes of a root in path order
func manifestNodes(ctx context.Context, repo Repository, rootID RootID) ([]Node, error) {
	nodes, err := repo.GetNodes(ctx, rootID)
	if err != nil {
		return nil, repoErr("get nodes", err)
	}

	files := nodes[:0]
	for _, node := range nodes {
		if node.Kind == KindFile && node.ContentHash != "" {
			files = append(files, node)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].RelativePath < files[j].RelativePath
	})
	return files, nil
}

// ExportManifest writes the file fingerprints of a root to out as a tagged
// checksum list ("SHA256 (a/b.txt) = ...") that sha256sum -c and friends
// can verify from the root directory. Returns the number of entries.
func ExportManifest(ctx context.Context, repo Repository, rootID RootID, out *os.File) (int, error) {
	nodes, err := manifestNodes(ctx, repo, rootID)
	if err != nil {
		return 0, err
	}

	lines := make([][]byte, len(nodes))
	iovecs := make([]syscall.Iovec, len(nodes))
	for i, node := range nodes {
		lines[i] = manifestLine(node)
		iovecs[i] = syscall.Iovec{Base: &lines[i][0]}
		iovecs[i].SetLen(len(lines[i]))
	}

	for offset := 0; offset < len(iovecs); offset += iovMax {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		end := offset + iovMax
		if end > len(iovecs) {
			end = len(iovecs)
		}

		expected := 0
		for _, line := range lines[offset:end] {
			expected += len(line)
		}

		nw, err := vectorio.WritevRaw(uintptr(out.Fd()), iovecs[offset:end])
		if err != nil {
			return 0, fmt.Errorf("failed to write manifest with vectorio: %w", err)
		}
		if nw != expected {
			return 0, fmt.Errorf("manifest write incomplete: wrote %d bytes, expected %d", nw, expected)
		}
	}

	if info, err := out.Stat(); err == nil && info.Mode().IsRegular() {
		if err := unix.Fdatasync(int(out.Fd())); err != nil {
			return 0, fmt.Errorf("failed to sync manifest: %w", err)
		}
	}
	return len(nodes), nil
}

// WriteManifestFile exports a root's manifest to path through a temporary
// file and an atomic rename
func WriteManifestFile(ctx context.Context, repo Repository, rootID RootID, path string) (int, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary manifest: %w", err)
	}
	tmpPath := tmp.Name()

	count, err := ExportManifest(ctx, repo, rootID, tmp)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close temporary manifest: %w", closeErr)
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to rename manifest into place: %w", err)
	}
	return count, nil
}
