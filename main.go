package main

import "github.com/qobs-build/plbuild/cmd"

func main() {
	cmd.Execute()
}
