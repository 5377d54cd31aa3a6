// Package manifest handles cobble.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a cobble.toml project configuration.
type Manifest struct {
	Project  Project        `toml:"project"`
	Source   Source         `toml:"source"`
	Compiler CompilerConfig `toml:"compiler"`
	Pack     PackConfig     `toml:"pack"`

	// Dir is the directory containing the cobble.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name        string `toml:"name"`
	Namespace   string `toml:"namespace"`
	Version     string `toml:"version"`
	Description string `toml:"description"`
}

// Source configures source file locations.
type Source struct {
	Dir   string `toml:"dir"`
	Entry string `toml:"entry"`
}

// CompilerConfig exposes the compiler knobs.
type CompilerConfig struct {
	Objective     string `toml:"objective"`
	RegPrefix     string `toml:"reg-prefix"`
	GenPrefix     string `toml:"gen-prefix"`
	MaxInlineSize int    `toml:"max-inline-size"`
	MaxCommands   int    `toml:"max-commands"`
	Debug         bool   `toml:"debug"`
}

// PackConfig configures pack output.
type PackConfig struct {
	Output        string `toml:"output"`
	MinEngine     []int  `toml:"min-engine-version"`
	IncludeSource bool   `toml:"include-source"`
}

// Load parses a cobble.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "cobble.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Source.Dir == "" {
		m.Source.Dir = "src"
	}
	if m.Source.Entry == "" {
		m.Source.Entry = "main.cob"
	}
	if m.Project.Namespace == "" {
		m.Project.Namespace = m.Project.Name
	}
	if m.Pack.Output == "" {
		m.Pack.Output = "build"
	}
	if len(m.Pack.MinEngine) == 0 {
		m.Pack.MinEngine = []int{1, 19, 50}
	}

	if m.Project.Namespace != "" {
		if err := ValidateNamespace(m.Project.Namespace); err != nil {
			return nil, fmt.Errorf("invalid namespace in %s: %w", path, err)
		}
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a cobble.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "cobble.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPath returns the absolute path of the configured source
// directory.
func (m *Manifest) SourceDirPath() string {
	return filepath.Join(m.Dir, m.Source.Dir)
}

// EntryPath returns the absolute path of the entry source file.
func (m *Manifest) EntryPath() string {
	return filepath.Join(m.SourceDirPath(), m.Source.Entry)
}

// OutputDir returns the absolute path of the pack output directory.
func (m *Manifest) OutputDir() string {
	return filepath.Join(m.Dir, m.Pack.Output)
}
