package main

import (
	"coin-screener/internal/cli"
)

func main() {
	cli.Execute()
}
