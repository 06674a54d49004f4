package indexer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/scip-indexer/internal/ignore"
)

// gitignoreEntry is appended to .gitignore when the index directory is not
// already listed.
const gitignoreEntry = ignore.IndexDirName + "/"

// gitignoreSpellings all count as the index directory being ignored.
var gitignoreSpellings = map[string]struct{}{
	ignore.IndexDirName:             {},
	ignore.IndexDirName + "/":       {},
	"/" + ignore.IndexDirName:       {},
	"/" + ignore.IndexDirName + "/": {},
}

// ensureGitignored appends the index directory to <root>/.gitignore when root
// is a git checkout and the entry is missing. It reports whether the file
// changed.
func ensureGitignored(root string) (bool, error) {
	if _, err := os.Stat(filepath.Join(root, ".git")); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	path := filepath.Join(root, ".gitignore")
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if hasGitignoreEntry(data) {
		return false, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	if len(data) > 0 && data[len(data)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString(gitignoreEntry)
	buf.WriteByte('\n')

	if _, err := io.Copy(f, &buf); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

func hasGitignoreEntry(data []byte) bool {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if _, ok := gitignoreSpellings[strings.TrimSpace(scanner.Text())]; ok {
			return true
		}
	}
	return false
}
