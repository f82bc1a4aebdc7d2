// Package steps defines the build step registry: the hand-ordered list of
// pipeline phases, their artifact patterns, and the static upstream edges.
// The registry is immutable once constructed.
package steps

import (
	"fmt"
	"strings"

	"github.com/forgeci/forge/internal/errors"
)

// BuildStep is one named unit of work producing an artifact via an
// external command.
type BuildStep struct {
	// ID is the stable step name.
	ID string

	// Script is the step's definition file, relative to the scripts dir.
	// It is both the external build action and the fingerprint/backup
	// subject for locking.
	Script string

	// ArtifactGlob identifies the step's output in the artifacts dir.
	ArtifactGlob string

	// Upstream lists ids of steps this step builds on. Hand-authored and
	// static; advisory audit metadata, never used for ordering.
	Upstream []string

	// Requires lists hard prerequisite paths (relative to the work dir)
	// that must exist before the step's command is invoked, e.g. a
	// source checkout.
	Requires []string

	// Required marks a step whose failure aborts the whole run even in
	// best-effort mode.
	Required bool

	// AutoLock locks the step with its produced artifact after success.
	AutoLock bool
}

// PrefixRule maps an artifact filename prefix to a step id.
// Rules are ordered; the first matching rule wins, so longer prefixes
// must come before prefixes they contain ("torchvision-" before "torch-").
type PrefixRule struct {
	Prefix string
	StepID string
}

// Registry holds the ordered step list and artifact matching rules.
type Registry struct {
	steps []BuildStep
	byID  map[string]BuildStep
	rules []PrefixRule
}

// New validates and builds a registry from a step list and prefix rules.
func New(list []BuildStep, rules []PrefixRule) (*Registry, error) {
	if len(list) == 0 {
		return nil, errors.New(errors.EInvalidSteps, "step registry is empty")
	}

	byID := make(map[string]BuildStep, len(list))
	for _, s := range list {
		if s.ID == "" {
			return nil, errors.New(errors.EInvalidSteps, "step with empty id")
		}
		if _, dup := byID[s.ID]; dup {
			return nil, errors.New(errors.EInvalidSteps, "duplicate step id: "+s.ID)
		}
		if s.Script == "" {
			return nil, errors.New(errors.EInvalidSteps, "step "+s.ID+" has no script")
		}
		if s.ArtifactGlob == "" {
			return nil, errors.New(errors.EInvalidSteps, "step "+s.ID+" has no artifact glob")
		}
		byID[s.ID] = s
	}

	for _, s := range list {
		for _, up := range s.Upstream {
			if up == s.ID {
				return nil, errors.New(errors.EInvalidSteps, "step "+s.ID+" lists itself upstream")
			}
			if _, ok := byID[up]; !ok {
				return nil, errors.New(errors.EInvalidSteps,
					fmt.Sprintf("step %s lists unknown upstream %q", s.ID, up))
			}
		}
	}

	for _, r := range rules {
		if r.Prefix == "" {
			return nil, errors.New(errors.EInvalidSteps, "artifact rule with empty prefix")
		}
		if _, ok := byID[r.StepID]; !ok {
			return nil, errors.New(errors.EInvalidSteps,
				fmt.Sprintf("artifact rule %q references unknown step %q", r.Prefix, r.StepID))
		}
	}

	return &Registry{steps: list, byID: byID, rules: rules}, nil
}

// Get returns the step with the given id.
func (r *Registry) Get(id string) (BuildStep, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// All returns the steps in registry (pipeline) order.
func (r *Registry) All() []BuildStep {
	out := make([]BuildStep, len(r.steps))
	copy(out, r.steps)
	return out
}

// IDs returns the step ids in registry order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.steps))
	for i, s := range r.steps {
		ids[i] = s.ID
	}
	return ids
}

// MatchArtifact resolves an artifact filename to a step id using the
// ordered prefix rules. First match wins.
func (r *Registry) MatchArtifact(filename string) (string, bool) {
	for _, rule := range r.rules {
		if strings.HasPrefix(filename, rule.Prefix) {
			return rule.StepID, true
		}
	}
	return "", false
}

// Builtin returns the default registry: the PyTorch-for-ROCm wheel stack.
// Order is the pipeline execution order.
func Builtin() *Registry {
	reg, err := New(builtinSteps, builtinRules)
	if err != nil {
		// The builtin table is static; a validation failure here is a
		// programming error.
		panic(err)
	}
	return reg
}

var builtinSteps = []BuildStep{
	{
		ID:           "triton",
		Script:       "build_triton.sh",
		ArtifactGlob: "pytorch_triton_rocm-*.whl",
		Requires:     []string{"src/triton"},
		AutoLock:     true,
	},
	{
		ID:           "pytorch",
		Script:       "build_pytorch.sh",
		ArtifactGlob: "torch-*.whl",
		Upstream:     []string{"triton"},
		Requires:     []string{"src/pytorch"},
		Required:     true,
		AutoLock:     true,
	},
	{
		ID:           "torchvision",
		Script:       "build_torchvision.sh",
		ArtifactGlob: "torchvision-*.whl",
		Upstream:     []string{"pytorch"},
		Requires:     []string{"src/vision"},
		AutoLock:     true,
	},
	{
		ID:           "torchaudio",
		Script:       "build_torchaudio.sh",
		ArtifactGlob: "torchaudio-*.whl",
		Upstream:     []string{"pytorch"},
		Requires:     []string{"src/audio"},
		AutoLock:     true,
	},
	{
		ID:           "xformers",
		Script:       "build_xformers.sh",
		ArtifactGlob: "xformers-*.whl",
		Upstream:     []string{"pytorch"},
		Requires:     []string{"src/extras/xformers"},
		AutoLock:     true,
	},
	{
		ID:           "flash-attention",
		Script:       "build_flash_attention.sh",
		ArtifactGlob: "flash_attn-*.whl",
		Upstream:     []string{"pytorch"},
		Requires:     []string{"src/extras/flash-attention"},
		AutoLock:     true,
	},
}

// builtinRules is ordered longest-prefix-first where prefixes overlap:
// "torchvision-" and "torchaudio-" must match before "torch-".
var builtinRules = []PrefixRule{
	{Prefix: "pytorch_triton_rocm-", StepID: "triton"},
	{Prefix: "torchvision-", StepID: "torchvision"},
	{Prefix: "torchaudio-", StepID: "torchaudio"},
	{Prefix: "torch-", StepID: "pytorch"},
	{Prefix: "xformers-", StepID: "xformers"},
	{Prefix: "flash_attn-", StepID: "flash-attention"},
}
