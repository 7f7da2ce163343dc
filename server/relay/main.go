package relay

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ilog "github.com/lorikeet-im/lorikeet/log"
)

// Main is the relay process entry: parse configure, assemble the relay,
// serve until a termination signal, then drain and print statistics.
func Main() {
	fmt.Println("Lorikeet group chat relay.")

	options, err := configureParse()
	if options == nil {
		ilog.Fatalf("%v", err.Error())
		return
	}

	ilog.SetGlobalLogLevel(options.LogLevel.Value)
	ilog.Infof0("Log level is %v.", options.LogLevel.Value)

	relay := New(options.Options())
	ilog.Infof0("Relay node ID is %v.", relay.NodeID.String())

	manageEndpoint := options.ManageEndpoint.AuthorityString()
	ilog.Infof0("Management API serve at %v.", manageEndpoint)
	go func() {
		if err := relay.ServeManageAPI(manageEndpoint); err != nil {
			ilog.Error("Management API failure: " + err.Error())
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	received := make(chan os.Signal, 1)
	go func() {
		sig := <-signals
		ilog.Infof0("Signal %v received. Shutting down relay.", sig)
		relay.Shutdown()
		received <- sig
	}()

	if err := relay.ListenAndServe(options.Endpoint.AuthorityString()); err != nil {
		ilog.Fatalf("%v", err.Error())
		return
	}

	// Wait out the drain the signal handler started.
	sig := <-received
	relay.PrintStats()
	os.Exit(int(sig.(syscall.Signal)))
}
