package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ManifestName is the file name of the manifest inside an artifact
// directory and the name of the first member of every artifact archive.
const ManifestName = "artifact_manifest.txt"

// Manifest is the ordered list of subtree relpaths that contributed to an
// artifact. Order is contribution order and is never sorted.
type Manifest struct {
	Subtrees []string
}

// ParseManifest splits manifest text into subtree relpaths, dropping blank
// lines.
func ParseManifest(data []byte) *Manifest {
	m := &Manifest{}
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		m.Subtrees = append(m.Subtrees, line)
	}
	return m
}

// ReadManifest loads the manifest of the artifact directory dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data), nil
}

// Bytes renders the manifest, one relpath per line, newline terminated.
func (m *Manifest) Bytes() []byte {
	return []byte(strings.Join(m.Subtrees, "\n") + "\n")
}

// Write stores the manifest in the artifact directory dir.
func (m *Manifest) Write(dir string) error {
	return os.WriteFile(filepath.Join(dir, ManifestName), m.Bytes(), 0o644)
}

// ExistingSubtrees returns the absolute paths of the manifest subtrees that
// exist under dir, paired with their relpaths.
func (m *Manifest) ExistingSubtrees(dir string) (relpaths, paths []string) {
	for _, rel := range m.Subtrees {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if _, err := os.Stat(p); err != nil {
			continue
		}
		relpaths = append(relpaths, rel)
		paths = append(paths, p)
	}
	return relpaths, paths
}
