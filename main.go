package main

import "vidgate/cmd"

func main() {
	cmd.Execute()
}
