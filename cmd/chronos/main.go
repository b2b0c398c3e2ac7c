// Command chronos runs, tests and inspects frame-budgeted scheduler workloads.
package main

import (
	"os"

	"github.com/roach88/chronos/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
