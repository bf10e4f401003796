package main

import (
	"fmt"
	"os"

	"github.com/weaverqa/weaver/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand(&cli.Deps{})
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
