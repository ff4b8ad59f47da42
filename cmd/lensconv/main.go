// Command lensconv converts MatchMover RZML camera solves into 3DEqualizer
// lens files and Nuke distortion nodes.
package main

import (
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
