package main

import (
	"os"

	"workloadgen/cmd/workloadgen/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
