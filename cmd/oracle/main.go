package main

import "github.com/soltide/vrf-oracle/internal/cli"

func main() {
	cli.Execute()
}
