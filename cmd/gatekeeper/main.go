package main

import "github.com/openpantry/gatekeeper/internal/cli"

func main() {
	cli.Execute()
}
