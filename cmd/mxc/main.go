// Command mxc is the Mx* compiler's CLI: `mxc [-trace] <source> [ir-dump-path]`.
// It reads the source, compiles it, writes the output, and exits nonzero
// on error.
package main

import (
	"fmt"
	"os"

	"github.com/Engineev/mxc/internal/driver"
	"github.com/Engineev/mxc/internal/trace"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var positional []string
	for _, a := range args {
		if a == "-trace" {
			trace.Enabled = true
			continue
		}
		positional = append(positional, a)
	}
	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "usage: mxc [-trace] <source> [ir-dump-path]")
		return 2
	}
	srcPath := positional[0]
	var irDumpPath string
	if len(positional) > 1 {
		irDumpPath = positional[1]
	}

	src, err := os.ReadFile(srcPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	asmText, irDump, err := driver.Compile(string(src))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if irDumpPath != "" {
		if err := os.WriteFile(irDumpPath, []byte(irDump), 0o644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	} else {
		fmt.Print(irDump)
	}
	fmt.Print(asmText)
	return 0
}
