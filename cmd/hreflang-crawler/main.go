package main

import "github.com/JakeFAU/hreflang-crawler/cmd"

func main() {
	cmd.Execute()
}
