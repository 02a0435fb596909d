package main

import "github.com/brogergvhs/mangarack/cmd"

func main() {
	cmd.Execute()
}
