// Command hprofctl is a thin CLI driver over the hprof library: it parses
// command-line flags, loads configuration and wires up logging, then calls
// straight into internal/hprof and internal/archive. It holds no parsing or
// archiving logic of its own.
package main

import (
	"github.com/wroldwiedbwe/hprofkit/cmd/hprofctl/cmd"
)

func main() {
	cmd.Execute()
}
