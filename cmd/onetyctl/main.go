package main

import "github.com/contabhub/onety/cmd/onetyctl/cli"

func main() {
	cli.Execute()
}
