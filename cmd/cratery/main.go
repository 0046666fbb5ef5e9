package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/cratery/cratery/internal/bootstrap"
)

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, bootstrap.ErrMisconfiguration):
		return 2
	case errors.Is(err, bootstrap.ErrStorageFatal):
		return 3
	default:
		return 1
	}
}

func main() {
	service, err := bootstrap.InitServers()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize cratery: %v\n", err)

		os.Exit(exitCode(err))
	}

	if err := service.Run(); err != nil {
		service.Logger.Errorf("cratery exited with error: %v", err)
		_ = service.Logger.Sync()

		os.Exit(exitCode(err))
	}
}
