package resource

import (
	"runtime"
	"strconv"
	"strings"

	forgefs "github.com/forgeci/forge/internal/fs"
)

// Detect probes the host for planning facts. Memory detection is
// best-effort: when /proc/meminfo is unreadable, MemGB is 0 and the
// planner skips the memory clamp.
func Detect(fsys forgefs.FS) Facts {
	facts := Facts{Cores: runtime.NumCPU()}

	data, err := fsys.ReadFile("/proc/meminfo")
	if err != nil {
		return facts
	}
	facts.MemGB = parseMemTotalGB(string(data))
	return facts
}

// parseMemTotalGB extracts MemTotal from /proc/meminfo content, in GB
// (truncated). Returns 0 on any parse failure.
func parseMemTotalGB(meminfo string) int {
	for _, line := range strings.Split(meminfo, "\n") {
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return int(kb / (1024 * 1024))
	}
	return 0
}
