package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	require.NoError(t, os.Chmod(path, mode))
}

func symlink(t *testing.T, target, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.Symlink(target, path))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func readlink(t *testing.T, path string) string {
	t.Helper()
	target, err := os.Readlink(path)
	require.NoError(t, err)
	return target
}

func isExecutable(t *testing.T, path string) bool {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Mode().Perm()&0o111 != 0
}

// exampleRoot lays out the documentation example: a README, a symlink to it
// and an executable under example/stage/share/doc.
func exampleRoot(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "input")
	doc := filepath.Join(root, "example", "stage", "share", "doc")
	writeFile(t, filepath.Join(doc, "README.txt"), "Hello World!", 0o644)
	symlink(t, "README.txt", filepath.Join(doc, "README"))
	writeFile(t, filepath.Join(doc, "executable"), "Contents", 0o755)
	return root
}

const exampleDescriptor = `
[components.doc."example/stage"]
`

func buildExample(t *testing.T) (artifactDir string) {
	t.Helper()
	desc, err := ParseTOMLDescriptor([]byte(exampleDescriptor))
	require.NoError(t, err)
	artifactDir = filepath.Join(t.TempDir(), "artifact_dir")
	b := &Builder{Root: exampleRoot(t), Descriptor: desc, Defaults: NewDefaults()}
	_, err = b.Build("doc", artifactDir)
	require.NoError(t, err)
	return artifactDir
}
