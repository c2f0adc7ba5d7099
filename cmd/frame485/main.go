package main

import (
	"github.com/robotalks/simple485.go/pkg/cli/sh"
)

//go-build: CGO_ENABLED=0

func main() {
	sh.Main()
}
