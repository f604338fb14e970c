package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// tmpPrefix marks in-flight copies; walks ignore such files.
const tmpPrefix = ".claudesync-tmp-"

// copyIfChanged copies src to dst unless dst already holds identical content.
// It returns whether dst was written and how many bytes were copied.
func copyIfChanged(src, dst string) (bool, int64, error) {
	same, err := sameContent(src, dst)
	if err != nil {
		return false, 0, err
	}
	if same {
		return false, 0, nil
	}

	n, err := copyFile(src, dst)
	if err != nil {
		return false, 0, err
	}
	return true, n, nil
}

// sameContent reports whether dst is a regular file with the same bytes as src.
func sameContent(src, dst string) (bool, error) {
	dstInfo, err := os.Stat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if !dstInfo.Mode().IsRegular() {
		return false, nil
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	if srcInfo.Size() != dstInfo.Size() {
		return false, nil
	}

	srcHash, err := fileHash(src)
	if err != nil {
		return false, err
	}
	dstHash, err := fileHash(dst)
	if err != nil {
		return false, err
	}
	return srcHash == dstHash, nil
}

// copyFile streams src into a temp file next to dst and renames it into
// place, so readers only ever see the old or the new content.
func copyFile(src, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), tmpPrefix+"*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	n, err := io.Copy(tmpFile, srcFile)
	if err != nil {
		_ = tmpFile.Close()
		return 0, err
	}

	srcInfo, err := srcFile.Stat()
	if err != nil {
		_ = tmpFile.Close()
		return 0, err
	}

	if err := tmpFile.Chmod(srcInfo.Mode().Perm()); err != nil {
		_ = tmpFile.Close()
		return 0, err
	}

	if err := tmpFile.Close(); err != nil {
		return 0, err
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, err
	}

	return n, nil
}

// fileHash computes the SHA256 hash of a file
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func isTempName(name string) bool {
	return strings.HasPrefix(name, tmpPrefix)
}
