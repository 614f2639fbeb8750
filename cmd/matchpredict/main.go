package main

import "matchpredict/cmd/matchpredict/commands"

func main() {
	commands.Execute()
}
