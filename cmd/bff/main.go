package main

import (
	"go.brendoncarroll.net/star"

	"abiogenesis.dev/bff/bffcmd"
)

func main() {
	star.Main(bffcmd.Root())
}
