package main

import "odds-collector/internal/cli"

func main() {
	cli.Execute()
}
