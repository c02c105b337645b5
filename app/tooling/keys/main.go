// This program manages node keys and drives a running node through its
// web api.
package main

import "github.com/ardanlabs/multichain/app/tooling/keys/cmd"

func main() {
	cmd.Execute()
}
