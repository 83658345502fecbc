package main

import "github.com/chukul/caproxy/cmd"

func main() {
	cmd.Execute()
}
