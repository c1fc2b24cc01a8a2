// Package main is the entry point for the dailychat command line client.
package main

import "github.com/smart-daily/dailychat/internal/cli"

func main() {
	cli.Execute()
}
