package convert

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/h2non/filetype"
)

// isArchiveFile checks if path has zip extension and zip content.
func isArchiveFile(fname string) (bool, error) {
	if !strings.EqualFold(filepath.Ext(fname), ".zip") {
		return false, nil
	}

	f, err := os.Open(fname)
	if err != nil {
		return false, err
	}
	defer f.Close()

	// filetype needs at most 262 bytes to recognize anything
	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return filetype.Is(head[:n], "zip"), nil
}

// isStyleFile checks file name (slash or OS separated) against list of
// extensions, case insensitive.
func isStyleFile(name string, exts []string) bool {
	ext := strings.ToLower(path.Ext(filepath.ToSlash(name)))
	if ext == "" {
		return false
	}
	return slices.ContainsFunc(exts, func(e string) bool {
		return strings.ToLower(e) == ext
	})
}

// checkText refuses content which carries signature of a known binary format.
// Stylesheets never match any.
func checkText(data []byte) error {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return nil
	}
	return fmt.Errorf("content is not a stylesheet, detected %s (%s)", kind.Extension, kind.MIME.Value)
}
