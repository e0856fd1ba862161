package main

import "github.com/jacoco-filter/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
