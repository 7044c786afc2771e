package main

import "github.com/nextlevelbuilder/pigeon/cmd"

func main() {
	cmd.Execute()
}
