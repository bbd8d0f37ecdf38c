package main

import (
	"os"

	"github.com/Chative-core-poc-v1/text2sql/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
