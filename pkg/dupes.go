package bitwatch

import (
	"context"
	"sort"
)

// DuplicateFile is one member of a DuplicateGroup
type DuplicateFile struct {
	RootID       RootID `json:"root_id" yaml:"root_id"`
	RelativePath string `json:"relative_path" yaml:"relative_path"`
}

// DuplicateGroup represents a group of files with the same content hash
type DuplicateGroup struct {
	Algorithm Algorithm       `json:"algorithm" yaml:"algorithm"`
	Hash      string          `json:"hash" yaml:"hash"`
	Files     []DuplicateFile `json:"files" yaml:"files"`
	Count     int             `json:"count" yaml:"count"`
}

// FindDuplicates groups the recorded files of the given roots by content
// hash, across roots. Hashes from different algorithms never match. Only
// the snapshot is read, so the result is as fresh as the last hash run.
// Groups are ordered by size, largest first, then by hash.
func FindDuplicates(ctx context.Context, repo Repository, rootIDs []RootID) ([]DuplicateGroup, error) {
	type key struct {
		algorithm Algorithm
		hash      string
	}
	groups := make(map[key][]DuplicateFile)

	for _, id := range rootIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nodes, err := repo.GetNodes(ctx, id)
		if err != nil {
			return nil, repoErr("get nodes", err)
		}
		for _, node := range nodes {
			if node.Kind != KindFile || node.ContentHash == "" {
				continue
			}
			k := key{Algorithm(node.HashAlgorithm), node.ContentHash}
			groups[k] = append(groups[k], DuplicateFile{RootID: id, RelativePath: node.RelativePath})
		}
	}

	// Remove entries with only one file
	var result []DuplicateGroup
	for k, files := range groups {
		if len(files) < 2 {
			continue
		}
		sort.Slice(files, func(i, j int) bool {
			if files[i].RootID != files[j].RootID {
				return files[i].RootID < files[j].RootID
			}
			return files[i].RelativePath < files[j].RelativePath
		})
		result = append(result, DuplicateGroup{
			Algorithm: k.algorithm,
			Hash:      k.hash,
			Files:     files,
			Count:     len(files),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		if result[i].Hash != result[j].Hash {
			return result[i].Hash < result[j].Hash
		}
		return result[i].Algorithm < result[j].Algorithm
	})
	return result, nil
}
