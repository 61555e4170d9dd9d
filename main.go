package main

import (
	"log"

	"github.com/zvonler/threadgrab/cli"
)

func main() {
	threadgrabCmd := cli.NewCommand()
	if err := threadgrabCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
