package main

import "github.com/selimozcann/WhereGoes/cmd"

func main() {
	cmd.Execute()
}
