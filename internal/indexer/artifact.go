package indexer

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// backupArtifact copies the artifact at path to backupPath, replacing any
// previous backup. A missing artifact is not an error; copied reports
// whether a backup was written.
func backupArtifact(path, backupPath string) (copied bool, err error) {
	src, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open index: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(backupPath)
	if err != nil {
		return false, fmt.Errorf("failed to create backup: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return false, fmt.Errorf("failed to copy index to backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		return false, fmt.Errorf("failed to close backup: %w", err)
	}
	return true, nil
}

// partPath is where adapter name writes its output when several adapters
// share one artifact.
func partPath(indexPath, name string) string {
	return indexPath + "." + name + ".part"
}

// mergeArtifacts concatenates parts into dst through a temporary file and a
// rename. A SCIP index is a protobuf message whose top-level fields are
// repeated, so concatenated indexes decode as one index holding every
// document. Missing parts are skipped; when none exist dst is left alone.
func mergeArtifacts(dst string, parts []string) (merged bool, err error) {
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return false, fmt.Errorf("failed to create merged index: %w", err)
	}
	defer func() {
		if err != nil || !merged {
			_ = out.Close()
			_ = os.Remove(tmp)
		}
	}()

	for _, part := range parts {
		ok, err := appendFile(out, part)
		if err != nil {
			return false, err
		}
		merged = merged || ok
	}
	if !merged {
		return false, nil
	}

	if err := out.Close(); err != nil {
		return false, fmt.Errorf("failed to close merged index: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return false, fmt.Errorf("failed to replace index: %w", err)
	}
	return true, nil
}

func appendFile(w io.Writer, path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open index part: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := io.Copy(w, f); err != nil {
		return false, fmt.Errorf("failed to merge %s: %w", path, err)
	}
	return true, nil
}

// Fingerprint returns the xxhash64 of the file at path as 16 hex digits.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
