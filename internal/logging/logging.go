package logging

import (
	"io"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

// Setup configures the process-wide apex logger. Unknown levels fall back to
// info and unknown formats to text.
func Setup(level, format string) {
	SetupWriter(os.Stderr, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		log.SetHandler(json.New(w))
	case "cli":
		log.SetHandler(cli.New(w))
	default:
		log.SetHandler(text.New(w))
	}
	log.SetLevel(ParseLevel(level))
}

// ParseLevel maps a config string onto an apex level.
func ParseLevel(level string) log.Level {
	parsed, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return log.InfoLevel
	}
	return parsed
}
