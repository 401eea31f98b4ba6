package main

import (
	"github.com/MeKo-Tech/plantex/cmd/plantex/cmd"
)

func main() {
	cmd.Execute()
}
