package main

import (
	"github.com/andrescamacho/carfactory-go/internal/adapters/cli"
)

func main() {
	cli.Execute()
}
