package main

import "ads-stream-alerts/internal/cli"

func main() {
	cli.Execute()
}
