// Package scoutlog constructs the single *log.Logger NAVscout's CLI hands
// to every collaborator, adapted from the teacher's own
// log.New(os.Stdout, prefix, flags) construction in dependencies.go; this
// one writes to log.Writer() instead.
package scoutlog

import "log"

// New returns a logger prefixed with component, e.g. "[scout] ".
func New(component string) *log.Logger {
	return log.New(log.Writer(), "["+component+"] ", log.LstdFlags)
}
