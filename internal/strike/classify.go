// Package strike wraps one full pipeline run in failure bookkeeping: a
// curated error excerpt, a timestamped archive, a journal entry, and the
// strike count derived from the archive directory.
package strike

import (
	"fmt"
	"regexp"
	"strings"
)

// Category classifies a failure line. Classification is advisory, for
// human and agent consumption only; it never changes control flow.
type Category string

const (
	CategoryOutOfMemory   Category = "out_of_memory"
	CategoryLinkerError   Category = "linker_error"
	CategoryCompilerError Category = "compiler_error"
	CategoryMissingDep    Category = "missing_dependency"
	CategoryTestFailure   Category = "test_failure"
)

// Rule pairs a line pattern with its category. Rules are evaluated in
// table order per line; the first match wins.
type Rule struct {
	Pattern        *regexp.Regexp
	Category       Category
	Recommendation string
}

// rules is the fixed, ordered classification table. Out-of-memory comes
// first: an OOM kill usually also produces compiler-error lines, and the
// leading category names the root cause.
var rules = []Rule{
	{
		Pattern:        regexp.MustCompile(`(?i)out of memory|cannot allocate memory|oom-kill|killed signal|fatal error: Killed`),
		Category:       CategoryOutOfMemory,
		Recommendation: "lower the jobs override or raise per_job_mem_gb so the planner clamps harder",
	},
	{
		Pattern:        regexp.MustCompile(`undefined reference to|ld(\.lld)?: error|ld returned \d+ exit status`),
		Category:       CategoryLinkerError,
		Recommendation: "check library paths and that upstream phases produced their artifacts",
	},
	{
		Pattern:        regexp.MustCompile(`error: |fatal error: |CMake Error|ninja: build stopped`),
		Category:       CategoryCompilerError,
		Recommendation: "inspect the excerpt; likely a source-level regression in the phase's checkout",
	},
	{
		Pattern:        regexp.MustCompile(`ModuleNotFoundError|No module named|command not found|No such file or directory`),
		Category:       CategoryMissingDep,
		Recommendation: "a tool or module the phase needs is absent; verify the environment setup phase",
	},
	{
		Pattern:        regexp.MustCompile(`AssertionError|={3,} FAILURES ={3,}`),
		Category:       CategoryTestFailure,
		Recommendation: "the build succeeded but validation failed; inspect the failing assertions",
	},
}

// Rules returns the classification table in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Classify returns the first rule matching the line.
func Classify(line string) (Rule, bool) {
	for _, r := range rules {
		if r.Pattern.MatchString(line) {
			return r, true
		}
	}
	return Rule{}, false
}

// maxLinesPerCategory bounds each excerpt section.
const maxLinesPerCategory = 50

// BuildExcerpt builds the curated excerpt for a failed run's log:
// pattern-matched lines grouped in rule-table order, then a trailing
// window of the raw log. The lead category is the first rule with any
// match; empty when nothing matched.
//
// An empty log yields an empty excerpt.
func BuildExcerpt(log string, tailLines int) (excerpt string, lead Category) {
	if strings.TrimSpace(log) == "" {
		return "", ""
	}
	lines := strings.Split(log, "\n")

	matched := make(map[Category][]string)
	for _, line := range lines {
		if r, ok := Classify(line); ok {
			if len(matched[r.Category]) < maxLinesPerCategory {
				matched[r.Category] = append(matched[r.Category], line)
			}
		}
	}

	var b strings.Builder
	b.WriteString("# curated build failure excerpt\n")
	for _, r := range rules {
		hits := matched[r.Category]
		if len(hits) == 0 {
			continue
		}
		if lead == "" {
			lead = r.Category
		}
		fmt.Fprintf(&b, "\n## %s (%d lines)\n", r.Category, len(hits))
		for _, line := range hits {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	tail := lines
	if len(tail) > tailLines {
		tail = tail[len(tail)-tailLines:]
	}
	fmt.Fprintf(&b, "\n## tail (last %d lines)\n", len(tail))
	for _, line := range tail {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	return b.String(), lead
}

// Recommendation returns the fixed recommendation text for a category,
// or a generic fallback.
func Recommendation(c Category) string {
	for _, r := range rules {
		if r.Category == c {
			return r.Recommendation
		}
	}
	return "inspect the archived excerpt and full log"
}
