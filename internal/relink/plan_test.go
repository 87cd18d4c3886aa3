package relink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileset/internal/artifact"
)

func TestDefaultPlanAccepts(t *testing.T) {
	p := DefaultPlan()
	tests := []struct {
		name string
		rule PackageRule
		want bool
	}{
		{"core-runtime_lib_generic", p.Core, true},
		{"amd-llvm_run_generic", p.Core, true},
		{"core-hip_dev_generic", p.Core, true},
		{"core-runtime_dev_generic", p.Core, false},
		{"blas_lib_gfx110X", p.Core, false},
		{"blas_lib_gfx110X", p.Libraries, true},
		{"blas_dev_gfx110X", p.Libraries, false},
		{"rccl_lib_gfx94X", p.Libraries, true},
	}
	for _, tt := range tests {
		n, ok := artifact.ParseName(tt.name)
		require.True(t, ok, tt.name)
		assert.Equal(t, tt.want, tt.rule.Accepts(n), tt.name)
	}
}

func TestArtifactFilterEmptyAcceptsAll(t *testing.T) {
	n, ok := artifact.ParseName("anything_doc_generic")
	require.True(t, ok)
	assert.True(t, ArtifactFilter{}.Match(n))
	assert.False(t, PackageRule{}.Accepts(n), "a rule with no filters takes nothing")
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
prefix: my-sdk
libraries:
  artifacts:
    - names: [solver]
      components: [lib]
  exclude: ["**/*.a"]
`), 0o644))

	p, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, "my-sdk", p.Prefix)
	assert.Equal(t, DefaultPlan().Core, p.Core, "omitted keys keep defaults")
	require.Len(t, p.Libraries.Artifacts, 1)
	assert.Equal(t, []string{"solver"}, p.Libraries.Artifacts[0].Names)
	assert.Equal(t, []string{"**/*.a"}, p.Libraries.Exclude)
}

func TestLoadPlanErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadPlan(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty-prefix.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("prefix: \"\"\n"), 0o644))
	_, err = LoadPlan(empty)
	assert.ErrorContains(t, err, "prefix must not be empty")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("core: [\n"), 0o644))
	_, err = LoadPlan(bad)
	assert.Error(t, err)
}
