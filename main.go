// ./main.go
package main

import (
	"github.com/xkilldash9x/simclient/cmd"
)

// main is the entry point for the simclient CLI.
func main() {
	cmd.Execute()
}
