// Command loomstore inspects and maintains device storage: the virtual flash
// image, record logs and the user, post and totem databases.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/loomstore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
