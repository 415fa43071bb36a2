/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/wentf9/sshgate/cmd"

func main() {
	cmd.Execute()
}
