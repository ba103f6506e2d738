// The main package for the collector executable.
package main

import (
	"github.com/dataforge/collector/cmd"
)

func main() {
	cmd.Execute()
}
