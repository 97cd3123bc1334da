package bitwatch

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// NormaliseRelPath converts a root-relative path to the persisted form:
// forward slashes, cleaned, no leading "./" or "/", and "." for the root.
func NormaliseRelPath(relPath string) string {
	p := filepath.ToSlash(strings.TrimSpace(relPath))
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return RootRelativePath
	}
	p = path.Clean(p)
	if p == "" || p == "/" {
		return RootRelativePath
	}
	return p
}

// IsUnderOrEqual reports whether childPath equals parentPath or is nested
// beneath it. The comparison is separator-aligned so "foo2" is not under
// "foo". Both paths must already be normalised.
func IsUnderOrEqual(childPath, parentPath string) bool {
	if parentPath == RootRelativePath || childPath == parentPath {
		return true
	}
	return strings.HasPrefix(childPath, parentPath+PathSeparator)
}

// joinRelPath appends a child name to a normalised parent relative path
func joinRelPath(parent, name string) string {
	if parent == RootRelativePath {
		return name
	}
	return parent + PathSeparator + name
}

// absPath resolves a normalised relative path against a root directory
func absPath(rootPath, relPath string) string {
	if relPath == RootRelativePath {
		return rootPath
	}
	return filepath.Join(rootPath, filepath.FromSlash(relPath))
}

// RelativeTo returns the normalised relative path of absolute path p under
// rootPath, or ok=false if p is not inside rootPath.
func RelativeTo(rootPath, p string) (string, bool) {
	rootPath = filepath.Clean(rootPath)
	p = filepath.Clean(p)
	if p == rootPath {
		return RootRelativePath, true
	}
	rootWithSep := rootPath
	if !strings.HasSuffix(rootWithSep, string(filepath.Separator)) {
		rootWithSep += string(filepath.Separator)
	}
	if !strings.HasPrefix(p, rootWithSep) {
		return "", false
	}
	return NormaliseRelPath(strings.TrimPrefix(p, rootWithSep)), true
}

// ParseHumanSize parses human-readable size strings (e.g., "2M", "512k", "1G")
func ParseHumanSize(sizeStr string) (int, error) {
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	sizeStr = strings.ToUpper(strings.TrimSpace(sizeStr))

	// Split into numeric part and suffix
	var numPart string
	var suffix string
	for i, char := range sizeStr {
		if char >= '0' && char <= '9' || char == '.' {
			numPart += string(char)
		} else {
			suffix = strings.TrimSpace(sizeStr[i:])
			break
		}
	}

	if numPart == "" {
		return 0, fmt.Errorf("no numeric part in size string: %s", sizeStr)
	}

	num, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric part in size string %s: %w", sizeStr, err)
	}

	var multiplier int64
	switch suffix {
	case "", "B":
		multiplier = 1
	case "K", "KB":
		multiplier = 1024
	case "M", "MB":
		multiplier = 1024 * 1024
	case "G", "GB":
		multiplier = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unknown size suffix: %s", suffix)
	}

	result := int64(num * float64(multiplier))
	if result <= 0 {
		return 0, fmt.Errorf("size must be positive: %s", sizeStr)
	}
	if result > int64(^uint(0)>>1) {
		return 0, fmt.Errorf("size too large: %s", sizeStr)
	}

	return int(result), nil
}
