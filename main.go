package main

import "github.com/theirongolddev/emiscope/cmd"

func main() {
	cmd.Execute()
}
