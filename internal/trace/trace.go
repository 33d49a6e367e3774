// Package trace provides opt-in debug tracing, gated behind a single
// switch so production runs stay quiet.
package trace

import (
	"fmt"
	"os"

	"github.com/kr/pretty"
)

// Enabled turns tracing on; the CLI flips it when -trace is passed.
var Enabled bool

// Printf writes a trace line to stderr when tracing is enabled.
func Printf(format string, args ...interface{}) {
	if !Enabled {
		return
	}
	fmt.Fprintf(os.Stderr, "trace: "+format+"\n", args...)
}

// Dump pretty-prints a value to stderr when tracing is enabled, used for
// structural dumps of IR modules, functions and interference graphs.
func Dump(label string, v interface{}) {
	if !Enabled {
		return
	}
	fmt.Fprintf(os.Stderr, "trace: %s:\n", label)
	if _, err := pretty.Println(v); err != nil {
		fmt.Fprintf(os.Stderr, "trace: dump failed: %v\n", err)
	}
}
