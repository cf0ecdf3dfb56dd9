package main

import "github.com/oplcore/ymfdi/cmd"

func main() {
	cmd.Execute()
}
