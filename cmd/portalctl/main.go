package main

import (
	"os"
	_ "time/tzdata"

	"github.com/JonMunkholm/csvportal/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
