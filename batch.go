package goscanco

import (
	"os"
	"path/filepath"
)

// ConcurrentlyWalkDir recursively traverses dirPath and calls onFile for
// each entry that is not a directory, from its own goroutine, with concurrency capped
// at limit. Used by cmd/scanco-info's batch mode (§5) to fan a directory of
// ISQ/AIM files out across CanRead/ReadImageInformation calls without
// exhausting the process's file-descriptor budget.
func ConcurrentlyWalkDir(dirPath string, limit int, onFile func(path string)) error {
	if limit <= 0 {
		limit = 1
	}
	guard := make(chan struct{}, limit)
	var files []string

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return err
	}

	done := make(chan struct{}, len(files))
	for _, path := range files {
		guard <- struct{}{}
		go func(p string) {
			defer func() {
				<-guard
				done <- struct{}{}
			}()
			onFile(p)
		}(path)
	}
	for i := 0; i < len(files); i++ {
		<-done
	}
	return nil
}
