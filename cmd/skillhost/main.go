// Command skillhost runs skills linked into this binary and skills found in
// the configured skills directory. Skill packages register their factories
// from init, so linking one in is a blank import here.
package main

import (
	"os"

	"github.com/harun/skillhost/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
