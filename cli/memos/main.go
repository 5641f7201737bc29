package main

import (
	"os"

	memoscmder "github.com/anatolykoptev/MemOS/cmd/memos"
)

func main() {
	cmd := memoscmder.NewMemosCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
