// Command kfxconv converts KFX books to EPUB, PDF, CBZ, a resource ZIP or a
// JSON position map.
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
