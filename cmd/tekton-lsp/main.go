package main

import (
	"os"

	"github.com/tektoncd/tekton-lsp/internal/logger"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Println(err)
		os.Exit(1)
	}
}
