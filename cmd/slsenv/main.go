package main

import "github.com/heroku/slstest/cmd/slsenv/internal/commands"

func main() {
	commands.Execute()
}
