package main

import (
	"math/rand"
	"time"

	"github.com/LukaHietala/live/cmd"
)

func main() {
	rand.Seed(time.Now().UnixNano())

	cmd.Execute()
}
