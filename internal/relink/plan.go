package relink

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"fileset/internal/artifact"
)

// ArtifactFilter selects artifacts by name and component. An empty list
// accepts any value.
type ArtifactFilter struct {
	Names      []string `yaml:"names"`
	Components []string `yaml:"components"`
}

func (f ArtifactFilter) Match(n artifact.Name) bool {
	if len(f.Names) > 0 && !slices.Contains(f.Names, n.Name) {
		return false
	}
	if len(f.Components) > 0 && !slices.Contains(f.Components, n.Component) {
		return false
	}
	return true
}

// PackageRule decides which artifacts feed a package and which of their
// files it takes.
type PackageRule struct {
	Artifacts []ArtifactFilter `yaml:"artifacts"`
	Include   []string         `yaml:"include"`
	Exclude   []string         `yaml:"exclude"`
}

// Accepts reports whether any filter matches n.
func (r PackageRule) Accepts(n artifact.Name) bool {
	for _, f := range r.Artifacts {
		if f.Match(n) {
			return true
		}
	}
	return false
}

// Plan describes the package split: one core package, one libraries package
// per target family and a devel package holding everything.
type Plan struct {
	Prefix    string      `yaml:"prefix"`
	Core      PackageRule `yaml:"core"`
	Libraries PackageRule `yaml:"libraries"`
}

// DefaultPlan is the ROCm SDK split.
func DefaultPlan() *Plan {
	return &Plan{
		Prefix: "rocm-sdk",
		Core: PackageRule{
			Artifacts: []ArtifactFilter{
				{
					Names:      []string{"amd-llvm", "base", "core-hip", "core-runtime", "rocprofiler-sdk", "sysdeps"},
					Components: []string{"lib", "run"},
				},
				// hiprtc needs the HIP headers in its own tree.
				{Names: []string{"core-hip"}, Components: []string{"dev"}},
			},
			// TODO: drop once the base artifact stops placing CMake redirects in lib.
			Exclude: []string{"**/cmake/**"},
		},
		Libraries: PackageRule{
			Artifacts: []ArtifactFilter{
				{
					Names:      []string{"blas", "fft", "host-blas", "miopen", "prim", "rand", "rccl"},
					Components: []string{"lib"},
				},
			},
		},
	}
}

// LoadPlan reads a YAML plan. Keys it leaves out keep their defaults.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	p := DefaultPlan()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}
	if p.Prefix == "" {
		return nil, fmt.Errorf("plan %s: prefix must not be empty", path)
	}
	return p, nil
}
