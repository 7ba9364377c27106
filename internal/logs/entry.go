package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Entry is one decoded JSON line from a job log.
type Entry struct {
	Time    time.Time
	Level   string
	Message string
	Stage   string
	Fields  map[string]any
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// reserved keys are rendered separately and never repeated as fields.
var reserved = map[string]struct{}{"ts": {}, "level": {}, "msg": {}, "stage": {}, "job_id": {}}

// ParseEntry decodes a JSON log line. It reports false for lines that are
// not JSON objects, such as console output mirrored into the file.
func ParseEntry(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return Entry{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, false
	}
	entry := Entry{
		Level:   strings.ToLower(stringField(raw, "level")),
		Message: stringField(raw, "msg"),
		Stage:   stringField(raw, "stage"),
		Fields:  make(map[string]any),
	}
	if ts := stringField(raw, "ts"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.Time = parsed
		}
	}
	for key, value := range raw {
		if _, skip := reserved[key]; !skip {
			entry.Fields[key] = value
		}
	}
	return entry, true
}

func stringField(raw map[string]any, key string) string {
	if value, ok := raw[key].(string); ok {
		return value
	}
	return ""
}

// Filter selects entries by minimum level and stage. Zero values match all.
type Filter struct {
	MinLevel string
	Stage    string
}

// Match reports whether entry passes the filter. Unknown levels always pass.
func (f Filter) Match(entry Entry) bool {
	if f.Stage != "" && entry.Stage != f.Stage {
		return false
	}
	if f.MinLevel == "" {
		return true
	}
	want, ok := levelRank[strings.ToLower(f.MinLevel)]
	if !ok {
		return true
	}
	have, ok := levelRank[entry.Level]
	return !ok || have >= want
}

// ValidLevel reports whether level is usable as a Filter.MinLevel.
func ValidLevel(level string) bool {
	_, ok := levelRank[strings.ToLower(strings.TrimSpace(level))]
	return ok
}

// Format renders the entry on one line in local time.
func (e Entry) Format() string {
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format("15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s ", strings.ToUpper(e.Level))
	if e.Stage != "" {
		fmt.Fprintf(&b, "[%s] ", e.Stage)
	}
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%s", key, formatValue(e.Fields[key]))
	}
	return b.String()
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		if strings.ContainsAny(v, " \t\"") {
			return fmt.Sprintf("%q", v)
		}
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	case nil:
		return "null"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
