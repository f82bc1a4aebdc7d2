package steps

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/forgeci/forge/internal/errors"
	forgefs "github.com/forgeci/forge/internal/fs"
)

// stepsFile is the YAML shape of an external step registry file.
type stepsFile struct {
	Steps []struct {
		ID           string   `yaml:"id"`
		Script       string   `yaml:"script"`
		ArtifactGlob string   `yaml:"artifact_glob"`
		Upstream     []string `yaml:"upstream"`
		Requires     []string `yaml:"requires"`
		Required     bool     `yaml:"required"`
		AutoLock     bool     `yaml:"auto_lock"`
	} `yaml:"steps"`
	ArtifactRules []struct {
		Prefix string `yaml:"prefix"`
		Step   string `yaml:"step"`
	} `yaml:"artifact_rules"`
}

// LoadFile reads a step registry from a YAML file. The file replaces the
// builtin registry wholesale; there is no merging.
func LoadFile(fsys forgefs.FS, path string) (*Registry, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.EInvalidSteps, "steps file not found: "+path)
		}
		return nil, errors.Wrap(errors.EInvalidSteps, "failed to read steps file", err)
	}

	var f stepsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(errors.EInvalidSteps, "invalid steps yaml", err)
	}

	list := make([]BuildStep, 0, len(f.Steps))
	for _, s := range f.Steps {
		list = append(list, BuildStep{
			ID:           s.ID,
			Script:       s.Script,
			ArtifactGlob: s.ArtifactGlob,
			Upstream:     s.Upstream,
			Requires:     s.Requires,
			Required:     s.Required,
			AutoLock:     s.AutoLock,
		})
	}
	rules := make([]PrefixRule, 0, len(f.ArtifactRules))
	for _, r := range f.ArtifactRules {
		rules = append(rules, PrefixRule{Prefix: r.Prefix, StepID: r.Step})
	}

	return New(list, rules)
}
