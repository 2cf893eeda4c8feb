package main

import "github.com/sigefi/budget-approval/cmd"

func main() {
	cmd.Execute()
}
