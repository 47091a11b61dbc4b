package main

import "stakeflow/internal/cli"

func main() {
	cli.Execute()
}
