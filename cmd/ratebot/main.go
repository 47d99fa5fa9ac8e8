package main

import "uah-rates-bot/internal/cli"

func main() {
	cli.Execute()
}
