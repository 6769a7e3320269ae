package main

import "github.com/khcheck/khcheck/internal/cli"

func main() {
	cli.Execute()
}
