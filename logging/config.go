package logging

import (
	"strings"
	"time"
)

const (
	SinkConsole = "console"
	SinkJSON    = "json"
	SinkZap     = "zap"
)

type Config struct {
	EnabledSinks     []string
	BufferSize       int
	MinimumSeverity  Severity
	Fields           map[string]any
	JSON             JSONConfig
	Console          ConsoleConfig
	Zap              ZapConfig
	DropWarnInterval time.Duration
}

type JSONConfig struct {
	FilePath      string
	FlushInterval time.Duration
}

type ConsoleConfig struct {
	Prefix       string
	Microseconds bool
}

// ZapConfig selects between zap's production (json) and development
// (console) encoders.
type ZapConfig struct {
	Format string
}

func DefaultConfig() Config {
	return Config{
		EnabledSinks:     []string{SinkConsole},
		BufferSize:       512,
		MinimumSeverity:  SeverityInfo,
		DropWarnInterval: 5 * time.Second,
		JSON: JSONConfig{
			FilePath:      "events.jsonl",
			FlushInterval: 2 * time.Second,
		},
		Zap: ZapConfig{Format: "console"},
	}
}

func (c Config) HasSink(name string) bool {
	for _, s := range c.EnabledSinks {
		if s == name {
			return true
		}
	}
	return false
}

// ParseSinks splits a comma separated sink list, dropping blanks.
func ParseSinks(raw string) []string {
	var sinks []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(strings.ToLower(part)); name != "" {
			sinks = append(sinks, name)
		}
	}
	return sinks
}

func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	cloned := make(map[string]any, len(c.Fields))
	for k, v := range c.Fields {
		cloned[k] = v
	}
	return cloned
}
