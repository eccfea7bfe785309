package main

import "github.com/dmatscheko/homeassistant-rainsensor/internal/cli"

func main() {
	cli.Execute()
}
