package main

import "fileset/internal/cli"

func main() {
	cli.Main()
}
