// Command asorg-db builds and queries the AS organization history map.
package main

import (
	"fmt"
	"os"

	"github.com/eunmann/asorg-db/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
