package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// Signal-driven shutdown surfaces as context.Canceled; not worth printing.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "waveline:", err)
		}
		os.Exit(1)
	}
}
