package main

import "github.com/raniellyferreira/redis-inmemory-server/internal/cli"

func main() {
	cli.Execute()
}
