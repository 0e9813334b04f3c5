// Command spooltee spools its standard input to a temporary file once and
// copies it to any number of outputs concurrently, so a slow output never
// holds back a fast one or the producer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lanrat/diskbuf/exitcleanup"
)

func main() {
	// Signals become context cancellation so we always leave through
	// exitcleanup.Exit and the spool file is removed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "spooltee:", err)
		exitcleanup.Exit(1)
	}
	exitcleanup.Exit(0)
}
