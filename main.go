package main

import "github.com/truemediaorg/postrelay/cmd"

func main() {
	cmd.Execute()
}
