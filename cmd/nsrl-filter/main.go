// Command nsrl-filter splits a forensic file listing into known and unknown
// software using an NSRL hash reference database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pmatheus/nsrl-filter/internal/cli"
)

func main() {
	// Interrupts cancel the run; output already written stays under .partial names
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
