// Command librarian indexes documentation sources into a local vector
// store and answers retrieval queries against them.
package main

import (
	"fmt"
	"os"

	"github.com/librarian/librarian/cmd/librarian/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
