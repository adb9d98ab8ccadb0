// The main package for the wikigraph executable.
package main

import (
	"github.com/JakeFAU/wikigraph/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
