// The main package for the techscan executable.
package main

import (
	"github.com/JakeFAU/techscan/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
