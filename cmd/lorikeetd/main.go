package main

import (
	"github.com/lorikeet-im/lorikeet/server/relay"
)

func main() {
	relay.Main()
}
