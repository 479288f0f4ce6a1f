package main

import "github.com/cordonlabs/cordon/internal/cli"

func main() {
	cli.Execute()
}
