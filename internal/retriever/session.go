package retriever

import (
	"sort"
	"strings"
	"time"
)

// SessionContext is process-wide, explicitly set/cleared state that biases
// retrieve toward the files and vocabulary the caller is currently working
// with.
type SessionContext struct {
	TaskType   string
	FocusFiles []string
	Keywords   []string
	SetAt      time.Time
}

// taskKeywordSets maps a task_type to the fixed keyword set whose presence
// in the query earns a session boost.
var taskKeywordSets = map[string][]string{
	"debugging": {"error", "bug", "except", "fail", "traceback"},
	"refactor":  {"rename", "extract", "move"},
	"feature":   {"add", "new", "implement"},
	"review":    {"lint", "style", "doc"},
}

func (s *SessionContext) cacheFingerprint() string {
	if s == nil {
		return ""
	}
	focus := append([]string(nil), s.FocusFiles...)
	sort.Strings(focus)
	keywords := append([]string(nil), s.Keywords...)
	sort.Strings(keywords)
	return s.TaskType + "|" + strings.Join(focus, ",") + "|" + strings.Join(keywords, ",")
}
