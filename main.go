package main

import "brokerage-backoffice/internal/cli"

func main() {
	cli.Execute()
}
