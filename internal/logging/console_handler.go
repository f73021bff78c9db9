package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiDim    = "\033[2m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
)

// consoleHandler renders records as single human-readable lines:
//
//	15:04:05 INFO  [uploader] batch accepted session=sess_42 count=200
type consoleHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     slog.Leveler
	addSource bool
	color     bool
	attrs     []slog.Attr
	groups    []string
}

func newConsoleHandler(writer io.Writer, level slog.Leveler, addSource, color bool) *consoleHandler {
	return &consoleHandler{
		mu:        &sync.Mutex{},
		writer:    writer,
		level:     level,
		addSource: addSource,
		color:     color,
	}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder

	b.WriteString(h.dim(record.Time.Format(time.TimeOnly)))
	b.WriteByte(' ')
	b.WriteString(h.levelTag(record.Level))
	b.WriteByte(' ')

	component, attrs := h.collectAttrs(record)
	if component != "" {
		b.WriteString(h.dim("[" + component + "]"))
		b.WriteByte(' ')
	}

	b.WriteString(record.Message)

	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteByte(' ')
		b.WriteString(h.dim(key + "="))
		b.WriteString(attrs[key])
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)
	return &clone
}

// collectAttrs flattens handler and record attributes into key=value pairs,
// pulling the component attribute out for the line prefix.
func (h *consoleHandler) collectAttrs(record slog.Record) (string, map[string]string) {
	flat := make(map[string]string, len(h.attrs)+record.NumAttrs())
	component := ""

	var add func(prefix string, attr slog.Attr)
	add = func(prefix string, attr slog.Attr) {
		attr.Value = attr.Value.Resolve()
		if attr.Value.Kind() == slog.KindGroup {
			next := attr.Key
			if prefix != "" {
				next = prefix + "." + next
			}
			for _, nested := range attr.Value.Group() {
				add(next, nested)
			}
			return
		}
		key := attr.Key
		if prefix != "" {
			key = prefix + "." + key
		}
		if key == "component" && component == "" {
			component = attr.Value.String()
			return
		}
		flat[key] = formatValue(attr.Value)
	}

	groupPrefix := strings.Join(h.groups, ".")
	for _, attr := range h.attrs {
		add(groupPrefix, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		add(groupPrefix, attr)
		return true
	})

	if h.addSource && record.PC != 0 {
		flat["source"] = sourceLocation(record.PC)
	}

	return component, flat
}

func (h *consoleHandler) levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return h.paint(ansiRed, "ERROR")
	case level >= slog.LevelWarn:
		return h.paint(ansiYellow, "WARN ")
	case level >= slog.LevelInfo:
		return h.paint(ansiBlue, "INFO ")
	default:
		return h.paint(ansiCyan, "DEBUG")
	}
}

func (h *consoleHandler) paint(code, text string) string {
	if !h.color {
		return text
	}
	return code + text + ansiReset
}

func (h *consoleHandler) dim(text string) string {
	return h.paint(ansiDim, text)
}

func formatValue(value slog.Value) string {
	switch value.Kind() {
	case slog.KindString:
		s := value.String()
		if strings.ContainsAny(s, " \t\"") {
			return fmt.Sprintf("%q", s)
		}
		return s
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().Format(time.RFC3339)
	default:
		return value.String()
	}
}
