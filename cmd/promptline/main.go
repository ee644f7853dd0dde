package main

import (
	"github.com/promptline/promptline/cli"
)

func main() {
	cli.Execute()
}
