package main

import (
	"log/slog"
	"os"

	"hrpay/internal/app/server"
)

func main() {
	if err := server.Run(); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
