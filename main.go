package main

import "github.com/m0nkmaster/afk-sub001/cmd"

func main() {
	cmd.Execute()
}
