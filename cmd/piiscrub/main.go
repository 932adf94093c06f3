package main

import (
	"os"

	"github.com/faheem-arif/pii-scrubber/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
