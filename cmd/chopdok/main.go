// Command chopdok splits PDFs and maintains the project database from the
// command line.
package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"

    "github.com/joho/godotenv"

    logpkg "github.com/local/chopdok/internal/logger"
)

func main() {
    _ = godotenv.Load()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    err := newRootCmd().ExecuteContext(ctx)
    logpkg.Close()
    if err != nil {
        os.Exit(1)
    }
}
