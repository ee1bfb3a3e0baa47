package main

import "shellbridge/cmd"

func main() {
	cmd.Execute()
}
