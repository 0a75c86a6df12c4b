// Package logging provides the orchestrator's bracketed-tag console logger,
// matching the teacher's fmt.Printf("[DEBUG] ...") convention rather than
// introducing a structured logger the teacher's own code never reaches for.
package logging

import (
	"fmt"
	"os"
	"time"
)

func stamp() string {
	return time.Now().Format("15:04:05.000")
}

func Debug(format string, args ...interface{}) {
	fmt.Printf("[DEBUG %s] %s\n", stamp(), fmt.Sprintf(format, args...))
}

func Info(format string, args ...interface{}) {
	fmt.Printf("[INFO %s] %s\n", stamp(), fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	fmt.Printf("[WARNING %s] %s\n", stamp(), fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[ERROR %s] %s\n", stamp(), fmt.Sprintf(format, args...))
}
