package main

import "github.com/dgallion1/alignread/internal/cli"

func main() {
	cli.Execute()
}
