package config

import (
	"io"
	"log/slog"
)

func (c *Logger) BuildWithWriter(w io.Writer) (*slog.Logger, error) {
	return c.build(w)
}
