package main

import "github.com/kvbfs-project/kvbfs/cmd"

func main() {
	cmd.Execute()
}
