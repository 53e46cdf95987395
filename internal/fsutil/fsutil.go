// Package fsutil provides file system utility functions shared by the
// compiler, the cache calculator, and the dispatcher.
package fsutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ListFiles returns the relative paths of all regular files under root,
// sorted lexically. If root is a single file, the result is its base name.
// The sorted order makes fingerprinting and template walks deterministic.
func ListFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{filepath.Base(root)}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// CopyFile copies a single file, preserving the source mode bits.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

// CopyTree copies all regular files under src into dst, preserving the
// relative layout. src may also be a single file, in which case it is
// copied to dst/<basename>.
func CopyTree(src, dst string) error {
	files, err := ListFiles(src)
	if err != nil {
		return err
	}

	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	for _, rel := range files {
		from := filepath.Join(src, rel)
		if !info.IsDir() {
			from = src
		}
		if err := CopyFile(from, filepath.Join(dst, rel)); err != nil {
			return err
		}
	}
	return nil
}
