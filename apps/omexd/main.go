package main

import "github.com/omex-energy/omex/apps/omexd/cmd"

func main() {
	cmd.Execute()
}
