package logger

// Logger is the structured logging surface used across the engine.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}

// With returns a Logger that adds fields to every entry.
func With(l Logger, fields map[string]any) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return &scoped{base: l, fields: fields}
}

type scoped struct {
	base   Logger
	fields map[string]any
}

func (s *scoped) merge(fields map[string]any) map[string]any {
	out := make(map[string]any, len(s.fields)+len(fields))
	for k, v := range s.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (s *scoped) Debug(msg string, fields map[string]any) { s.base.Debug(msg, s.merge(fields)) }
func (s *scoped) Info(msg string, fields map[string]any)  { s.base.Info(msg, s.merge(fields)) }
func (s *scoped) Warn(msg string, fields map[string]any)  { s.base.Warn(msg, s.merge(fields)) }
func (s *scoped) Error(msg string, fields map[string]any) { s.base.Error(msg, s.merge(fields)) }
