package pipeline

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/backmassage/sizefit/internal/naming"
)

// Discover walks inputDir and returns media files sorted lexicographically
// for deterministic processing order. Earlier outputs (*.compressed.*) and
// leftover workspaces are skipped so reruns do not compress their own
// results.
func Discover(inputDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != inputDir && strings.HasPrefix(d.Name(), WorkspacePrefix) {
				return filepath.SkipDir
			}
			return nil
		}
		if !naming.IsMedia(path) || isOutput(d.Name()) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func isOutput(name string) bool {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if i := strings.LastIndex(stem, naming.OutputSuffix); i >= 0 {
		rest := stem[i+len(naming.OutputSuffix):]
		// Collision suffixes: photo.compressed-2.jpg
		return rest == "" || (len(rest) > 1 && rest[0] == '-' && strings.Trim(rest[1:], "0123456789") == "")
	}
	return false
}
