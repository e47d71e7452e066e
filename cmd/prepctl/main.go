package main

import (
	"os"

	"github.com/JonMunkholm/prepflow/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
