package main

import "github.com/condasolve/condasolve/internal/cli"

func main() {
	cli.Execute()
}
