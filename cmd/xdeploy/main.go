package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pendergraft/xdeploy/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}
