package prefs

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"lightcycle.ai/internal/sim/voxel"
)

type yamlDoc struct {
	Colors map[string]string `yaml:"colors"`
}

// yamlFile rewrites the whole document on every batch.
type yamlFile struct {
	path string
	doc  yamlDoc
}

func newYAMLFile(path string) *yamlFile {
	return &yamlFile{path: path, doc: yamlDoc{Colors: map[string]string{}}}
}

func (f *yamlFile) load() (map[uuid.UUID]voxel.Color, error) {
	out := map[uuid.UUID]voxel.Color{}
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	var doc yamlDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	for owner, name := range doc.Colors {
		id, err := uuid.Parse(owner)
		if err != nil {
			continue
		}
		c, ok := voxel.ParseColor(name)
		if !ok {
			continue
		}
		out[id] = c
		f.doc.Colors[id.String()] = c.String()
	}
	return out, nil
}

func (f *yamlFile) write(batch []row) error {
	for _, r := range batch {
		f.doc.Colors[r.Owner.String()] = r.Color.String()
	}
	b, err := yaml.Marshal(&f.doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *yamlFile) close() error { return nil }
