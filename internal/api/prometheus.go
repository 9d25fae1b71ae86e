package api

import (
	"fmt"
	"log/slog"
)

// promErrorLogger adapts slog to promhttp.Logger.
type promErrorLogger struct {
	l *slog.Logger
}

func (p promErrorLogger) Println(v ...any) {
	p.l.Error("prometheus handler", slog.String("error", fmt.Sprint(v...)))
}
