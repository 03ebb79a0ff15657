package main

import "github.com/nfrund/chatroom/cmd/chatroom/cmd"

func main() {
	cmd.Execute()
}
