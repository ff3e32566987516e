// Package main implements the quizgen API server: the HTTP API for AI
// question import and explanations, plus maintenance commands for schema
// migrations and offline chunking previews.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
