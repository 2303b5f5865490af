// Command nat64ctl is the CLI client for the gonat64 daemon's control API.
package main

import "github.com/gonat64/gonat64/cmd/nat64ctl/commands"

func main() {
	commands.Execute()
}
