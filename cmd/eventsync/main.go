package main

import "github.com/vietddude/eventsync/internal/cli"

func main() {
	cli.Execute()
}
