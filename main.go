package main

import "github.com/agentic-research/stencil/cmd"

func main() {
	cmd.Execute()
}
