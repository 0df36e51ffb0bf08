package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/reposync/pkg/cli"
	"github.com/m-mizutani/reposync/pkg/domain/types"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Run(ctx, os.Args)
	stop()

	if err != nil {
		var div *types.SequenceDivergenceError
		if errors.As(err, &div) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
