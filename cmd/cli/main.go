package main

import (
	"github.com/sparseml/asynctrain/cmd/cli/cmd"
)

func main() {
	cmd.Execute()
}
