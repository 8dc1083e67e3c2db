package main

import "opsdash/cmd/opsctl/cmd"

func main() {
	cmd.Execute()
}
