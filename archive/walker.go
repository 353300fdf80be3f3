// Package archive walks and rewrites zip archives entry by entry.
package archive

import (
	"fmt"
	"os"
	"path"
	"strings"

	zip "github.com/hidez8891/zip"
)

// WalkFunc is the type of the function called for each file in archive
// visited by Walk. The archive argument contains path to archive passed to Walk
// The file argument is the zip.File structure for file in archive which satisfies
// match condition. If an error is returned, processing stops.
type WalkFunc func(archive string, file *zip.File) error

// Walk walks all files in the archive with names starting with prefix,
// calling walkFn for each item. Directory entries are not visited. Archives
// with absolute entry paths or path traversal components ("..") are rejected.
func Walk(archive, prefix string, walkFn WalkFunc) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		name := f.FileHeader.Name
		if !isSafePath(name) {
			return fmt.Errorf("zip entry %q: unsafe path (absolute or contains path traversal)", name)
		}
		if !f.FileInfo().IsDir() && strings.HasPrefix(name, prefix) {
			if err := walkFn(archive, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReplaceFunc returns new content for the archive entry. Returning nil data
// keeps entry as is.
type ReplaceFunc func(file *zip.File) ([]byte, error)

// Rewrite copies archive src to dst keeping order of entries. Entries for
// which replace returns data are recompressed with it, everything else is
// copied raw without decompression.
func Rewrite(src, dst string, replace ReplaceFunc) (err error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("unable to create target archive (%s): %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	w := zip.NewWriter(out)
	for _, f := range r.File {
		if !isSafePath(f.Name) {
			return fmt.Errorf("zip entry %q: unsafe path (absolute or contains path traversal)", f.Name)
		}

		var data []byte
		if !f.FileInfo().IsDir() {
			if data, err = replace(f); err != nil {
				return err
			}
		}
		if data == nil {
			if err := w.CopyFile(f); err != nil {
				return fmt.Errorf("unable to copy entry %q: %w", f.Name, err)
			}
			continue
		}

		fw, err := w.CreateHeader(&zip.FileHeader{
			Name:          f.Name,
			Comment:       f.Comment,
			Method:        f.Method,
			Modified:      f.Modified,
			ExternalAttrs: f.ExternalAttrs,
		})
		if err != nil {
			return fmt.Errorf("unable to create entry %q: %w", f.Name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("unable to write entry %q: %w", f.Name, err)
		}
	}
	return w.Close()
}

// isSafePath returns false for paths that could escape the extraction
// directory: absolute paths and those containing ".." components.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
