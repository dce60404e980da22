package main

import "github.com/xkilldash9x/iqfetch/cmd"

func main() {
	cmd.Execute()
}
