package main

import "github.com/audiolibrelab/micstream/cmd"

func main() {
	cmd.Execute()
}
