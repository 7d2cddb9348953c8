package main

import "github.com/modbuild/modbuild/cmd"

func main() {
	cmd.Execute()
}
