package strike

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/forgeci/forge/internal/errors"
	"github.com/forgeci/forge/internal/fs"
	"github.com/forgeci/forge/internal/journal"
)

// RunFunc performs one complete pipeline run and reports its exit code
// and the path of the log it wrote. A non-nil error means the run could
// not be attempted at all, not that a phase failed.
type RunFunc func(ctx context.Context) (exitCode int, logPath string, err error)

// tailWindow is how many trailing log lines the excerpt always carries.
const tailWindow = 100

// timestampToken extracts the timestamp portion of a build log name.
// The archive must reuse the log's token verbatim so the pair stays
// correlated even when archiving happens much later.
var timestampToken = regexp.MustCompile(`(\d{8}_\d{6})`)

// Result is the outcome of one supervised run.
type Result struct {
	Succeeded   bool
	ExitCode    int
	LogPath     string
	ArchivePath string // empty when nothing was archived
	Category    Category
}

// Controller supervises a single pipeline run: stale-lock cleanup
// before, archive and journal bookkeeping after a failure. Retry policy
// lives with the caller; the controller only records strikes.
type Controller struct {
	FS          fs.FS
	ArchiveDir  string
	JournalPath string
	StaleGlobs  []string // glob patterns, relative to WorkDir, removed before each run
	WorkDir     string
	Run         RunFunc
	Now         func() time.Time
	Stderr      io.Writer
}

// RunOnce executes one supervised run.
//
// A zero exit code returns a succeeded result with no archive and no
// journal entry. Any other exit code archives a curated excerpt under
// ArchiveDir, named after the log's own timestamp token, and appends a
// failed entry to the journal.
func (c *Controller) RunOnce(ctx context.Context) (*Result, error) {
	c.cleanStale()
	c.preflight()

	started := c.Now()
	code, logPath, err := c.Run(ctx)
	if err != nil {
		return nil, err
	}
	ended := c.Now()

	res := &Result{ExitCode: code, LogPath: logPath}
	if code == 0 {
		res.Succeeded = true
		return res, nil
	}

	token := tokenFor(logPath)
	archivePath := filepath.Join(c.ArchiveDir, "build_"+token+".error.log")

	raw, readErr := c.FS.ReadFile(logPath)
	if readErr != nil {
		fmt.Fprintf(c.Stderr, "[warn] cannot read build log %s: %v\n", logPath, readErr)
	}
	excerpt, lead := BuildExcerpt(string(raw), tailWindow)
	res.Category = lead

	var files []string
	if excerpt != "" {
		if err := c.FS.MkdirAll(c.ArchiveDir, 0o755); err != nil {
			return nil, errors.Wrap(errors.EArchiveFailed, "create archive dir", err)
		}
		if err := fs.WriteFileAtomic(c.FS, archivePath, []byte(excerpt), 0o644); err != nil {
			return nil, errors.Wrap(errors.EArchiveFailed, "write archive "+archivePath, err)
		}
		res.ArchivePath = archivePath
		files = append(files, archivePath)
	}
	if logPath != "" {
		files = append(files, logPath)
	}

	entry := journal.NewEntry(ended, journal.StatusFailed, failureSummary(lead, code))
	entry.Files = files
	entry.StartedAt = started.UTC().Format(time.RFC3339)
	entry.EndedAt = ended.UTC().Format(time.RFC3339)
	entry.ExitCode = code
	entry.ArchivePath = res.ArchivePath
	if lead != "" {
		entry.Recommendation = Recommendation(lead)
	}
	if err := journal.Append(c.JournalPath, entry); err != nil {
		return nil, errors.Wrap(errors.EJournalFailed, "append journal", err)
	}
	return res, nil
}

// Strikes counts archived failures. The archive directory is the only
// source of truth; there is no separate counter to drift.
func (c *Controller) Strikes() (int, error) {
	paths, err := c.ArchivePaths()
	if err != nil {
		return 0, err
	}
	return len(paths), nil
}

// ArchivePaths lists the archived excerpts, oldest first by name.
func (c *Controller) ArchivePaths() ([]string, error) {
	matches, err := c.FS.Glob(filepath.Join(c.ArchiveDir, "*.error.log"))
	if err != nil {
		return nil, errors.Wrap(errors.EInternal, "scan archive dir", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// cleanStale removes leftover lock files from interrupted runs. Removal
// failures are warnings; a stale lock must never block a new run.
func (c *Controller) cleanStale() {
	for _, pattern := range c.StaleGlobs {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(c.WorkDir, pattern)
		}
		matches, err := c.FS.Glob(pattern)
		if err != nil {
			fmt.Fprintf(c.Stderr, "[warn] stale lock scan %s: %v\n", pattern, err)
			continue
		}
		for _, m := range matches {
			if err := c.FS.Remove(m); err != nil {
				fmt.Fprintf(c.Stderr, "[warn] remove stale lock %s: %v\n", m, err)
			}
		}
	}
}

// preflight warns when the previous run never wrote a terminal journal
// entry. Advisory only.
func (c *Controller) preflight() {
	last, ok, err := journal.Tail(c.JournalPath)
	if err != nil || !ok {
		return
	}
	if last.Status == journal.StatusInProgress {
		fmt.Fprintf(c.Stderr, "[warn] previous run recorded as in_progress since %s; it may have been interrupted\n", last.Timestamp)
	}
}

// tokenFor derives the archive timestamp token from a log path. The
// token is copied from the name, never regenerated from the clock.
func tokenFor(logPath string) string {
	base := filepath.Base(logPath)
	if m := timestampToken.FindString(base); m != "" {
		return m
	}
	return strings.TrimSuffix(strings.TrimPrefix(base, "build_"), ".log")
}

func failureSummary(lead Category, code int) string {
	if lead == "" {
		return fmt.Sprintf("build failed with exit code %d", code)
	}
	return fmt.Sprintf("build failed with exit code %d (%s)", code, lead)
}
