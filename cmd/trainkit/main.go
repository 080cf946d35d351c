package main

import (
	"github.com/trainkit/trainkit/cmd/trainkit/cmd"
)

func main() {
	cmd.Execute()
}
