package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rtp-go/rtp/cmd"
	"github.com/rtp-go/rtp/core"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.CmdRTP.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if core.IsConfig(err) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}
