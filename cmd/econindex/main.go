package main

import "econindex/internal/cli"

func main() {
	cli.Execute()
}
