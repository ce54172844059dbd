package main

import (
	"os"

	"github.com/bill-buster/personal-assistant-sub001/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
