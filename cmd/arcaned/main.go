package main

import "arcane/server"

func main() {
	server.Main()
}
