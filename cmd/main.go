package main

import (
	"os"

	"github.com/soundprediction/go-rolodex/cmd/rolodex"
)

func main() {
	if err := rolodex.Execute(); err != nil {
		os.Exit(1)
	}
}
