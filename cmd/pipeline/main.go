package main

import (
	"os"

	"startup-positioning-map/cmd/pipeline/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
