package languages

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// pyprojectMeta is the subset of pyproject.toml the Python adapter reads.
type pyprojectMeta struct {
	Project struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name    string `toml:"name"`
			Version string `toml:"version"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// readPyprojectMeta returns the project name and version declared in
// pyproject.toml, preferring [project] over [tool.poetry]. Missing or
// malformed files yield empty strings.
func readPyprojectMeta(projectRoot string) (name, version string) {
	data, err := os.ReadFile(filepath.Join(projectRoot, "pyproject.toml"))
	if err != nil {
		return "", ""
	}

	var meta pyprojectMeta
	if err := toml.Unmarshal(data, &meta); err != nil {
		return "", ""
	}

	name = strings.TrimSpace(meta.Project.Name)
	version = strings.TrimSpace(meta.Project.Version)
	if name == "" {
		name = strings.TrimSpace(meta.Tool.Poetry.Name)
	}
	if version == "" {
		version = strings.TrimSpace(meta.Tool.Poetry.Version)
	}
	return name, version
}
