package main

import (
	"flag"
	"log"

	"github.com/lorikeet-im/lorikeet/utils/cmdline"
)

type ClientConfigure struct {
	RelayEndpoint *cmdline.NetEndpointValue
	Plain         *cmdline.BoolValue
}

func parseConfigure() *ClientConfigure {
	config := &ClientConfigure{}

	relayEndpoint, err := cmdline.NewNetEndpointValueDefault([]string{"tcp"}, "127.0.0.1:8080")
	if err != nil {
		log.Panicln(err.Error())
		return nil
	}
	config.RelayEndpoint = relayEndpoint
	config.Plain = cmdline.NewBoolValueDefault(false)

	flag.Var(config.RelayEndpoint, "relay", "Relay endpoint.")
	flag.Var(config.Plain, "plain", "Hide message timestamps.")
	flag.Parse()

	return config
}
