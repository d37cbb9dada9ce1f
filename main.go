// ./main.go
package main

import (
	"github.com/xkilldash9x/scalpel-locator/cmd"
)

// main is the entry point for the scalpel-locator CLI.
func main() {
	cmd.Execute()
}
