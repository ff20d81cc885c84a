package main

import "github.com/cadenalabs/cadena/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
