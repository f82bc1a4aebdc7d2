package strike

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	forgefs "github.com/forgeci/forge/internal/fs"
	"github.com/forgeci/forge/internal/journal"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		line string
		want Category
	}{
		{"c++: fatal error: Killed signal terminated program cc1plus", CategoryOutOfMemory},
		{"virtual memory exhausted: Cannot allocate memory", CategoryOutOfMemory},
		{"undefined reference to `hipMalloc'", CategoryLinkerError},
		{"collect2: error: ld returned 1 exit status", CategoryLinkerError},
		{"CMake Error at CMakeLists.txt:42 (find_package)", CategoryCompilerError},
		{"ninja: build stopped: subcommand failed.", CategoryCompilerError},
		{"ModuleNotFoundError: No module named 'torch'", CategoryMissingDep},
		{"sh: amdclang++: command not found", CategoryMissingDep},
		{"AssertionError: tensors are not close", CategoryTestFailure},
	}
	for _, tc := range cases {
		r, ok := Classify(tc.line)
		require.True(t, ok, "line %q should classify", tc.line)
		assert.Equal(t, tc.want, r.Category, "line %q", tc.line)
	}

	_, ok := Classify("[1234/5678] Building CXX object caffe2/foo.o")
	assert.False(t, ok)
}

func TestClassify_OOMWinsOverCompilerError(t *testing.T) {
	// An OOM kill line also contains "fatal error: "; table order must
	// attribute it to out_of_memory.
	r, ok := Classify("g++: fatal error: Killed signal terminated program")
	require.True(t, ok)
	assert.Equal(t, CategoryOutOfMemory, r.Category)
}

func TestBuildExcerpt(t *testing.T) {
	log := strings.Join([]string{
		"[1/3] Building CXX object a.o",
		"src/a.cpp:10:5: error: unknown type name 'Tensor'",
		"collect2: error: ld returned 1 exit status",
		"ninja: build stopped: subcommand failed.",
	}, "\n")

	excerpt, lead := BuildExcerpt(log, 2)
	assert.Equal(t, CategoryLinkerError, lead)
	assert.Contains(t, excerpt, "## linker_error (1 lines)")
	assert.Contains(t, excerpt, "## compiler_error (2 lines)")
	assert.Contains(t, excerpt, "## tail (last 2 lines)")
	// Sections appear in table order regardless of line order.
	assert.Less(t, strings.Index(excerpt, "linker_error"), strings.Index(excerpt, "compiler_error"))
}

func TestBuildExcerpt_Empty(t *testing.T) {
	excerpt, lead := BuildExcerpt("", 10)
	assert.Empty(t, excerpt)
	assert.Empty(t, lead)

	excerpt, lead = BuildExcerpt("   \n \n", 10)
	assert.Empty(t, excerpt)
	assert.Empty(t, lead)
}

func TestBuildExcerpt_NoMatchesStillHasTail(t *testing.T) {
	excerpt, lead := BuildExcerpt("line one\nline two\nline three", 2)
	assert.Empty(t, lead)
	assert.NotContains(t, excerpt, "##_")
	assert.Contains(t, excerpt, "## tail (last 2 lines)")
	assert.Contains(t, excerpt, "line three")
	assert.NotContains(t, excerpt, "line one")
}

func newController(t *testing.T, run RunFunc) (*Controller, string) {
	t.Helper()
	dir := t.TempDir()
	now := time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC)
	c := &Controller{
		FS:          forgefs.NewRealFS(),
		ArchiveDir:  filepath.Join(dir, "archive"),
		JournalPath: filepath.Join(dir, "journal.jsonl"),
		WorkDir:     dir,
		Run:         run,
		Now:         func() time.Time { return now },
		Stderr:      io.Discard,
	}
	return c, dir
}

func writeLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunOnce_Success(t *testing.T) {
	c, dir := newController(t, nil)
	logPath := writeLog(t, dir, "build_20260101_120000.log", "all good\n")
	c.Run = func(context.Context) (int, string, error) {
		return 0, logPath, nil
	}

	res, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Empty(t, res.ArchivePath)

	n, err := c.Strikes()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, ok, err := journal.Tail(c.JournalPath)
	require.NoError(t, err)
	assert.False(t, ok, "success must not journal")
}

func TestRunOnce_FailureArchivesWithLogToken(t *testing.T) {
	c, dir := newController(t, nil)
	logPath := writeLog(t, dir, "build_20260101_120000.log",
		"src/a.cpp:1:1: error: something broke\n")
	c.Run = func(context.Context) (int, string, error) {
		return 2, logPath, nil
	}

	res, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Equal(t, 2, res.ExitCode)
	assert.Equal(t, CategoryCompilerError, res.Category)

	// The archive reuses the log's own timestamp token, not the clock
	// at archive time (12:30 here).
	want := filepath.Join(c.ArchiveDir, "build_20260101_120000.error.log")
	assert.Equal(t, want, res.ArchivePath)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Contains(t, string(data), "something broke")

	last, ok, err := journal.Tail(c.JournalPath)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, journal.StatusFailed, last.Status)
	assert.Equal(t, 2, last.ExitCode)
	assert.Equal(t, want, last.ArchivePath)
	assert.Contains(t, last.Files, logPath)
	assert.Equal(t, Recommendation(CategoryCompilerError), last.Recommendation)
}

func TestRunOnce_EmptyLogSkipsArchiveButJournals(t *testing.T) {
	c, dir := newController(t, nil)
	logPath := writeLog(t, dir, "build_20260101_120000.log", "")
	c.Run = func(context.Context) (int, string, error) {
		return 1, logPath, nil
	}

	res, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.ArchivePath)

	n, err := c.Strikes()
	require.NoError(t, err)
	assert.Zero(t, n)

	last, ok, err := journal.Tail(c.JournalPath)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, journal.StatusFailed, last.Status)
	assert.Empty(t, last.ArchivePath)
}

func TestRunOnce_StaleLockCleanup(t *testing.T) {
	c, dir := newController(t, nil)
	stale := filepath.Join(dir, "pytorch", "build", ".ninja_lock")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, nil, 0o644))
	c.StaleGlobs = []string{"pytorch/build/.ninja_lock"}

	logPath := writeLog(t, dir, "build_20260101_120000.log", "ok\n")
	c.Run = func(context.Context) (int, string, error) {
		if _, err := os.Stat(stale); !os.IsNotExist(err) {
			t.Error("stale lock should be gone before the run starts")
		}
		return 0, logPath, nil
	}

	_, err := c.RunOnce(context.Background())
	require.NoError(t, err)
}

func TestStrikes_CountsArchives(t *testing.T) {
	c, dir := newController(t, nil)
	tokens := []string{"20260101_010000", "20260101_020000", "20260101_030000"}
	for i, tok := range tokens {
		logPath := writeLog(t, dir, "build_"+tok+".log",
			"ninja: build stopped: subcommand failed.\n")
		c.Run = func(context.Context) (int, string, error) {
			return 1, logPath, nil
		}
		_, err := c.RunOnce(context.Background())
		require.NoError(t, err)

		n, err := c.Strikes()
		require.NoError(t, err)
		assert.Equal(t, i+1, n)
	}

	paths, err := c.ArchivePaths()
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(c.ArchiveDir, "build_20260101_010000.error.log"), paths[0])
}

func TestTokenFor_Fallback(t *testing.T) {
	assert.Equal(t, "20260101_120000", tokenFor("/logs/build_20260101_120000.log"))
	assert.Equal(t, "manual", tokenFor("/logs/build_manual.log"))
}
