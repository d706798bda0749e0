package main

import "github.com/shouni/go-igc-fetch/cmd"

func main() {
	cmd.Execute()
}
