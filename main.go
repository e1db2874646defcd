// The main package for the radar executable.
package main

import (
	"github.com/JakeFAU/mention-radar/cmd"
)

func main() {
	cmd.Execute()
}
