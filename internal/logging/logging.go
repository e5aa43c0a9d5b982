// Package logging provides the small prefixed-logger helper every core package uses, the
// same way station's internal/db and internal/services write plain "[Component] message: %v"
// lines through the standard library log package rather than a structured logger.
package logging

import (
	"log"
	"os"
)

// Prefixed returns a *log.Logger that tags every line with "[component] ".
func Prefixed(component string) *log.Logger {
	return log.New(os.Stderr, "["+component+"] ", log.LstdFlags)
}
