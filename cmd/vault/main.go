// Package main provides the vault CLI and HTTP server.
package main

import "github.com/mesh-intelligence/vault/internal/cli"

func main() {
	cli.Execute()
}
