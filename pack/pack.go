// Package pack serializes compiled command sequences into a behavior
// pack directory layout.
package pack

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/cobble-lang/cobble/compiler"
	"github.com/cobble-lang/cobble/manifest"
)

// packManifest is the behavior pack manifest.json document.
type packManifest struct {
	FormatVersion int          `json:"format_version"`
	Header        packHeader   `json:"header"`
	Modules       []packModule `json:"modules"`
}

type packHeader struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	UUID             string `json:"uuid"`
	Version          []int  `json:"version"`
	MinEngineVersion []int  `json:"min_engine_version"`
}

type packModule struct {
	Type        string `json:"type"`
	UUID        string `json:"uuid"`
	Version     []int  `json:"version"`
	Description string `json:"description"`
}

// Write lays out the compiled output under m.OutputDir():
// manifest.json plus one functions/<path>.mcfunction file per
// sequence.
func Write(m *manifest.Manifest, out *compiler.Output) error {
	root := m.OutputDir()
	fnDir := filepath.Join(root, "functions")
	if err := os.MkdirAll(fnDir, 0755); err != nil {
		return err
	}

	if err := writeManifest(filepath.Join(root, "manifest.json"), m); err != nil {
		return err
	}
	for _, seq := range out.Sequences {
		path := filepath.Join(fnDir, filepath.FromSlash(seq.Path())+".mcfunction")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(seq.Text()+"\n"), 0644); err != nil {
			return err
		}
	}
	if m.Pack.IncludeSource {
		if err := copySources(m.SourceDirPath(), filepath.Join(root, "src")); err != nil {
			return err
		}
	}
	return nil
}

func writeManifest(path string, m *manifest.Manifest) error {
	version := parseVersion(m.Project.Version)
	doc := packManifest{
		FormatVersion: 2,
		Header: packHeader{
			Name:             m.Project.Name,
			Description:      m.Project.Description,
			UUID:             stableUUID(m.Project.Namespace + "/header"),
			Version:          version,
			MinEngineVersion: m.Pack.MinEngine,
		},
		Modules: []packModule{{
			Type:        "data",
			UUID:        stableUUID(m.Project.Namespace + "/data"),
			Version:     version,
			Description: m.Project.Description,
		}},
	}
	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// stableUUID derives a deterministic pack id from the project
// namespace, so rebuilding never churns installed pack identities.
func stableUUID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("cobble:"+name)).String()
}

// parseVersion turns "1.2.3" into [1 2 3]; malformed or missing parts
// fall back to zero.
func parseVersion(v string) []int {
	parts := []int{0, 0, 0}
	for i, s := range strings.SplitN(v, ".", 3) {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			parts[i] = n
		}
	}
	return parts
}

func copySources(srcDir, dstDir string) error {
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".cob") {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(dstDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", path, err)
		}
		return os.WriteFile(dst, data, 0644)
	})
}
