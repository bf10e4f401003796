package lineage

import (
	"fmt"
	"regexp"
	"strings"
)

// Stage identifies one step of the pipeline. Stages are totally ordered;
// each consumes the records of its predecessor.
type Stage int

const (
	StageEvent Stage = iota
	StageIssue
	StageSchedule
	StageExecute
	StageReport
)

// Stages lists all stages in pipeline order.
func Stages() []Stage {
	return []Stage{StageEvent, StageIssue, StageSchedule, StageExecute, StageReport}
}

var stageNames = map[Stage]string{
	StageEvent:    "event",
	StageIssue:    "issue",
	StageSchedule: "schedule",
	StageExecute:  "execute",
	StageReport:   "report",
}

func (s Stage) String() string { return stageNames[s] }

// Prefix is the record-file prefix for the stage.
func (s Stage) Prefix() string { return stageNames[s] + "-" }

// ParseStage resolves a stage by name.
func ParseStage(name string) (Stage, error) {
	for st, n := range stageNames {
		if n == name {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// Before reports whether s precedes other in pipeline order.
func (s Stage) Before(other Stage) bool { return s < other }

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._+=-]+`)

// SafeKey sanitizes one lineage key component for use in a record name.
// The mapping is deterministic so identical keys always produce
// identical names.
func SafeKey(key string) string {
	return unsafeChars.ReplaceAllString(key, "_")
}

// RecordName builds a stage record filename from the ancestor key tuple
// plus the stage's own key. Every stage carries all prior keys forward
// and adds exactly one of its own.
func RecordName(stage Stage, keys ...string) string {
	safe := make([]string, 0, len(keys))
	for _, k := range keys {
		safe = append(safe, SafeKey(k))
	}
	return stage.Prefix() + strings.Join(safe, "-") + ".yaml"
}
