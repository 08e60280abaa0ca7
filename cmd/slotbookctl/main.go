package main

import "slotbook/backend/internal/cli"

// version is set at build time.
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.Execute()
}
