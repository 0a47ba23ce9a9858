package main

import (
	"github.com/luma/redisfast/cmd"
)

func main() {
	cmd.Execute()
}
