package main

import "studio-store/cmd/studiostore/cmd"

func main() {
	cmd.Execute()
}
