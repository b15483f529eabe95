package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(run())
}

func run() int {
	a, err := buildApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.close()

	if err := newRootCommand(a).Execute(); err != nil {
		// errExit means the error envelope already went to stderr.
		if !errors.Is(err, errExit) {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
	return 0
}
