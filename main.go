package main

import "github.com/hellofresh/gdpr-dump/cmd"

func main() {
	cmd.Execute()
}
