package main

import "github.com/vovakirdan/roomchat/internal/cli"

func main() {
	cli.Execute()
}
