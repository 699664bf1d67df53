package main

import "github.com/zephyrprotocol/zephscan/internal/cli"

func main() {
	cli.Execute()
}
