package main

import "github.com/Manu343726/elfhex/cmd/elfhex"

func main() {
	elfhex.Execute()
}
