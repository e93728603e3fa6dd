package main

import "parking-finder-backend/cmd/parkerd/command"

func main() {
	command.Execute()
}
