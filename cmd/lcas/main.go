package main

import "github.com/aweris/lcas/cmd/lcas/cmd"

func main() {
	cmd.Execute()
}
