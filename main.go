package main

import "github.com/crackomatic/crackomatic/cmd"

func main() {
	cmd.Execute()
}
