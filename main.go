package main

import "github.com/nsyszr/eventbroker/cmd"

func main() {
	cmd.Execute()
}
