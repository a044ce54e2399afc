package httpserver

import "log/slog"

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for lifecycle messages. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}
