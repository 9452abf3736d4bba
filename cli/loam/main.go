package main

import (
	"os"

	loamcmder "github.com/loambase/loam/cmd/loam"
)

func main() {
	cmd := loamcmder.NewLoamCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
