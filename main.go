package main

import (
	"Ariami/cmd"
)

func main() {
	cmd.Execute()
}
