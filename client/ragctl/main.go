package main

import "DocRAG/client/ragctl/cmd"

func main() {
	cmd.Execute()
}
