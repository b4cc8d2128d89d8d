// ./main.go
package main

import (
	"github.com/MissioAI/browserpilot/cmd"
)

// main is the entry point for the browserpilot application.
func main() {
	cmd.Execute()
}
