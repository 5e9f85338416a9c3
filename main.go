package main

import "neonlanes/cmd"

func main() {
	cmd.Execute()
}
