package main

import "github.com/stacklaunch-io/ms-go-accounts/cmd"

func main() {
	cmd.Execute()
}
