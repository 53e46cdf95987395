package calculator

import (
	"crypto/md5" //nolint:gosec // G501: fingerprint for change detection, not security
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/casegrid-labs/casegrid/internal/fsutil"
)

// FingerprintFile is the per-case file holding the content hash of the
// case's compiled inputs. A later run with a cache calculator pointing at
// the results directory uses it to decide reuse.
const FingerprintFile = ".cg_hash"

// Fingerprint computes the MD5 content hash of a compiled input (file or
// directory). Files are hashed in sorted relative-path order, each
// prefixed by its path, so renames and content changes both change the
// fingerprint while the absolute location does not.
func Fingerprint(inputPath string) (string, error) {
	files, err := fsutil.ListFiles(inputPath)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", inputPath, err)
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", inputPath, err)
	}

	h := md5.New() //nolint:gosec // G401: change detection only
	for _, rel := range files {
		path := filepath.Join(inputPath, rel)
		if !info.IsDir() {
			path = inputPath
		}

		io.WriteString(h, rel)
		h.Write([]byte{0})

		f, err := os.Open(path) //nolint:gosec // G304: path comes from walking the input tree
		if err != nil {
			return "", fmt.Errorf("fingerprint %s: %w", path, err)
		}
		if _, err := io.Copy(h, f); err != nil {
			f.Close()
			return "", fmt.Errorf("fingerprint %s: %w", path, err)
		}
		f.Close()
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteFingerprint persists a case fingerprint into dir.
func WriteFingerprint(dir, fingerprint string) error {
	return os.WriteFile(filepath.Join(dir, FingerprintFile), []byte(fingerprint+"\n"), 0o640)
}

// ReadFingerprint reads the persisted fingerprint from dir. A missing
// file returns an empty string, which never matches a real fingerprint.
func ReadFingerprint(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, FingerprintFile)) //nolint:gosec // G304: dir is a results directory
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
