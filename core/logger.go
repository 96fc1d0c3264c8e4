package core

import (
	"os"

	"github.com/rtp-go/rtp/std/log"
)

var Log = log.Default()
var logFileObj *os.File

// OpenLogger initializes the logger from the core section of c.
func OpenLogger(c *Config) error {
	level, err := log.ParseLevel(c.Core.LogLevel)
	if err != nil {
		return err
	}

	// open file if filename is not empty
	out := os.Stderr
	if c.Core.LogFile != "" {
		logFileObj, err = os.OpenFile(c.ResolveRelPath(c.Core.LogFile),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return &FatalError{Op: "open log file", Err: err}
		}
		out = logFileObj
	}

	if c.Core.LogFormat == "json" {
		Log = log.NewJson(out)
	} else {
		Log = log.NewText(out)
	}
	Log.SetLevel(level)
	log.SetDefault(Log)
	return nil
}

// CloseLogger closes the log file, if any.
func CloseLogger() {
	if logFileObj != nil {
		logFileObj.Close()
		logFileObj = nil
	}
}
