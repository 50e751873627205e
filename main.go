package main

import "fwupload/cmd"

func main() {
	cmd.Execute()
}
