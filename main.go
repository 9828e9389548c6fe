package main

import (
	"log"

	"github.com/gridflex/flexcore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
