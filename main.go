package main

import "geocdn/cmd"

func main() {
	cmd.Execute()
}
