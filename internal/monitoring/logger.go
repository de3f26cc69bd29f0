// Package monitoring holds the diagnostic logging hook shared by the
// corpus, engine and storage packages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf.
// Binaries may redirect it with SetLogger; tests usually mute it with Quiet.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Quiet mutes Logf and returns a function that restores the previous logger.
func Quiet() (restore func()) {
	prev := Logf
	SetLogger(nil)
	return func() { Logf = prev }
}
