package main

import "malasakit/cmd"

func main() {
	cmd.Execute()
}
