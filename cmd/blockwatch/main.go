package main

import "github.com/vietddude/blockwatch/internal/cli"

func main() {
	cli.Execute()
}
