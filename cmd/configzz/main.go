package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andrej220/configzz/pkg/executor"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(executor.SSHDialer).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "configzz:", err)
		stop()
		os.Exit(1)
	}
}
