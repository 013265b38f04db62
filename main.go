package main

import "github.com/frahmantamala/recurpay/cmd"

func main() {
	cmd.Execute()
}
