// Command medtrack tracks medication adherence for patients and caretakers.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/medtrack/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
