package main

import (
	"log"

	"github.com/gatescan/gatescan/pkg/cli"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cli.Execute()
}
