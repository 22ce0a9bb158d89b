package main

import "sidebridge/cmd/sidepanel/command"

func main() {
	command.Execute()
}
