// Package spec loads the YAML build configuration: which files make up
// a package, and how a package is cut into hosted files.
package spec

import (
	"io/ioutil"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/t7a/pitdelta/model"
	yaml "gopkg.in/yaml.v2"
)

// PackageSpec selects the files of a package.  Globs are doublestar
// patterns relative to the source directory.
type PackageSpec struct {
	Name            string            `yaml:"name"`
	Include         []string          `yaml:"include"`
	Exclude         []string          `yaml:"exclude,omitempty"`
	VersionProvider string            `yaml:"versionProvider"`
	Properties      map[string]string `yaml:"properties,omitempty"`
}

// ProjectionEntry is one hosted items bundle, plus deltas against up to
// MaxHostDeltas older releases.
type ProjectionEntry struct {
	Content       []string `yaml:"content"`
	MaxHostDeltas int      `yaml:"maxHostDeltas"`
}

// ProjectionSpec lists the bundles of a projection.
type ProjectionSpec struct {
	Entries []ProjectionEntry `yaml:"entries"`
}

func validGlobs(what string, globs []string) error {
	for _, g := range globs {
		if !doublestar.ValidatePattern(g) {
			return model.BuildSpecErrorf("%s: malformed glob %q", what, g)
		}
	}
	return nil
}

// Validate checks everything that can be checked without a source tree.
func (s *PackageSpec) Validate() error {
	switch {
	case s.Name == "":
		return model.BuildSpecErrorf("package spec has no name")
	case len(s.Include) == 0:
		return model.BuildSpecErrorf("package spec %s has no include globs", s.Name)
	case s.VersionProvider == "":
		return model.BuildSpecErrorf("package spec %s has no version provider", s.Name)
	}
	err := validGlobs("include", s.Include)
	if err != nil {
		return err
	}
	return validGlobs("exclude", s.Exclude)
}

// Validate checks globs and delta depths.
func (s *ProjectionSpec) Validate() error {
	for i, e := range s.Entries {
		if len(e.Content) == 0 {
			return model.BuildSpecErrorf("projection entry %d has no content globs", i)
		}
		if e.MaxHostDeltas < 0 {
			return model.BuildSpecErrorf("projection entry %d: negative maxHostDeltas %d", i, e.MaxHostDeltas)
		}
		err := validGlobs("content", e.Content)
		if err != nil {
			return err
		}
	}
	return nil
}

// Match reports whether relpath matches any of globs.
func Match(globs []string, relpath string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, relpath); ok {
			return true
		}
	}
	return false
}

var metaEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "?", `\?`,
	"[", `\[`, "]", `\]`, "{", `\{`, "}", `\}`,
)

// Literal turns relpath into a glob matching only relpath.
func Literal(relpath string) string {
	return metaEscaper.Replace(relpath)
}

// load decodes strictly, so a misspelled key fails the build instead
// of being dropped.
func load(path string, out interface{}) error {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	err = yaml.UnmarshalStrict(buf, out)
	if err != nil {
		return &model.BuildSpecError{Reason: errors.Wrap(err, path).Error()}
	}
	return nil
}

// LoadPackageSpec reads and validates a package spec file.
func LoadPackageSpec(path string) (s *PackageSpec, err error) {
	s = &PackageSpec{}
	err = load(path, s)
	if err != nil {
		return nil, err
	}
	err = s.Validate()
	if err != nil {
		return nil, err
	}
	return
}

// LoadProjectionSpec reads and validates a projection spec file.
func LoadProjectionSpec(path string) (s *ProjectionSpec, err error) {
	s = &ProjectionSpec{}
	err = load(path, s)
	if err != nil {
		return nil, err
	}
	err = s.Validate()
	if err != nil {
		return nil, err
	}
	return
}
