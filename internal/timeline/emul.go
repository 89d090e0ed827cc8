package timeline

import (
	"fmt"
	"strconv"
	"strings"
)

// Emulator control-plane event kinds, §6: "at minimum inst_fail, role,
// plus implementation-specific extras". send_find and comp_path mirror
// the original emulator's own extras (LeaderElection.py, RootCtrl.py).
const (
	EmulInstFail = "inst_fail"
	EmulRole     = "role"
	EmulSendFind = "send_find"
	EmulCompPath = "comp_path"
)

// EmulEvent is one parsed "XXXEMUL,<ts>,<kind>,<args...>" line (§6).
type EmulEvent struct {
	Timestamp float64
	Kind      string
	Args      []string
}

// FormatEmulEvent renders one line in the §6 emulator event format,
// for logging at CRITICAL the way the original's self.logger.critical
// calls do.
func FormatEmulEvent(ts float64, kind string, args ...string) string {
	fields := append([]string{"XXXEMUL", strconv.FormatFloat(ts, 'f', -1, 64), kind}, args...)
	return strings.Join(fields, ",")
}

// ParseEmulEvent parses a log line containing an "XXXEMUL," marker
// (possibly preceded by other log prefix text, e.g. a logrus
// timestamp) into its timestamp, kind and remaining arguments.
func ParseEmulEvent(line string) (EmulEvent, error) {
	const marker = "XXXEMUL,"
	idx := strings.Index(line, marker)
	if idx < 0 {
		return EmulEvent{}, fmt.Errorf("timeline: line does not contain an %s marker", marker)
	}
	rest := line[idx+len(marker):]
	parts := strings.Split(strings.TrimRight(rest, "\r\n"), ",")
	if len(parts) < 2 {
		return EmulEvent{}, fmt.Errorf("timeline: malformed emulator event line %q", line)
	}
	ts, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return EmulEvent{}, fmt.Errorf("timeline: bad timestamp in %q: %w", line, err)
	}
	return EmulEvent{Timestamp: ts, Kind: parts[1], Args: parts[2:]}, nil
}
