package relay

import (
	"flag"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/lorikeet-im/lorikeet/config"
	ilog "github.com/lorikeet-im/lorikeet/log"
	"github.com/lorikeet-im/lorikeet/server/cache"
	"github.com/lorikeet-im/lorikeet/server/sched"
	"github.com/lorikeet-im/lorikeet/server/session"
	"github.com/lorikeet-im/lorikeet/utils/cmdline"
	yaml "gopkg.in/yaml.v2"
)

type RelayOptions struct {
	ExternalConfig *cmdline.StringValue
	LogLevel       *cmdline.UintValue

	// Endpoint to bind and serve the chat protocol.
	Endpoint *cmdline.NetEndpointValue

	// Endpoint to bind and serve the management HTTP API.
	ManageEndpoint *cmdline.NetEndpointValue

	Workers *cmdline.UintValue
	Policy  *cmdline.StringValue

	CacheCapacity *cmdline.UintValue
	CacheTTL      *cmdline.UintValue
	SweepPeriod   *cmdline.UintValue

	HistoryLimit      *cmdline.UintValue
	SessionBufferSize *cmdline.UintValue
}

func (options *RelayOptions) SetDefaultFromConfigure(cfg *config.RelayConfigure) error {
	if options.LogLevel.IsDefault {
		options.LogLevel.Value = cfg.LogLevel
	}
	if options.Endpoint.IsDefault && cfg.Endpoint != "" {
		if err := options.Endpoint.Set(cfg.Endpoint); err != nil {
			return err
		}
	}
	if options.ManageEndpoint.IsDefault && cfg.Manage.Endpoint != "" {
		if err := options.ManageEndpoint.Set(cfg.Manage.Endpoint); err != nil {
			return err
		}
	}
	if options.Workers.IsDefault && cfg.Scheduler.Workers != 0 {
		options.Workers.Value = cfg.Scheduler.Workers
	}
	if options.Policy.IsDefault && cfg.Scheduler.Policy != "" {
		options.Policy.Value = cfg.Scheduler.Policy
	}
	if options.CacheCapacity.IsDefault && cfg.Cache.Capacity != 0 {
		options.CacheCapacity.Value = cfg.Cache.Capacity
	}
	if options.CacheTTL.IsDefault && cfg.Cache.TTL != 0 {
		options.CacheTTL.Value = cfg.Cache.TTL
	}
	if options.SweepPeriod.IsDefault {
		options.SweepPeriod.Value = cfg.Cache.SweepPeriod
	}
	if options.HistoryLimit.IsDefault && cfg.HistoryLimit != 0 {
		options.HistoryLimit.Value = cfg.HistoryLimit
	}
	if options.SessionBufferSize.IsDefault && cfg.SessionBufferSize != 0 {
		options.SessionBufferSize.Value = cfg.SessionBufferSize
	}
	return nil
}

func (options *RelayOptions) SetDefault() error {
	if options.Endpoint.Host == "" {
		return fmt.Errorf("Endpoint host should not be empty. (See \"-endpoint\")")
	}
	if !options.Endpoint.HasPort || options.Endpoint.Port == 0 || options.Endpoint.Port > 0xFFFF {
		return fmt.Errorf("Endpoint port should not be %v. (See \"-endpoint\")", options.Endpoint.Port)
	}
	if options.Workers.Value == 0 {
		return fmt.Errorf("Worker count should not be 0. (See \"-workers\")")
	}
	if _, err := sched.ParsePolicy(options.Policy.Value); err != nil {
		return fmt.Errorf("%v (See \"-policy\")", err.Error())
	}
	if options.HistoryLimit.Value == 0 {
		return fmt.Errorf("History limit should not be 0. (See \"-history-limit\")")
	}
	return nil
}

// Options converts parsed flags into relay construction parameters.
func (options *RelayOptions) Options() Options {
	policy, _ := sched.ParsePolicy(options.Policy.Value)
	return Options{
		Workers:           options.Workers.Value,
		Policy:            policy,
		CacheCapacity:     options.CacheCapacity.Value,
		CacheTTL:          time.Duration(options.CacheTTL.Value) * time.Second,
		SweepPeriod:       time.Duration(options.SweepPeriod.Value) * time.Second,
		HistoryLimit:      options.HistoryLimit.Value,
		SessionBufferSize: options.SessionBufferSize.Value,
	}
}

func configureParse() (*RelayOptions, error) {
	var err error
	var endpoint, manageEndpoint *cmdline.NetEndpointValue

	if endpoint, err = cmdline.NewNetEndpointValueDefault([]string{"tcp"}, "0.0.0.0:8080"); err != nil {
		ilog.Panicf("Flag value creating failure: %v", err.Error())
		return nil, err
	}
	if manageEndpoint, err = cmdline.NewNetEndpointValueDefault([]string{"tcp", "http"}, "127.0.0.1:8081"); err != nil {
		ilog.Panicf("Flag value creating failure: %v", err.Error())
		return nil, err
	}

	options := &RelayOptions{
		ExternalConfig:    cmdline.NewStringValue(),
		LogLevel:          cmdline.NewUintValueDefault(0),
		Endpoint:          endpoint,
		ManageEndpoint:    manageEndpoint,
		Workers:           cmdline.NewUintValueDefault(DefaultWorkers),
		Policy:            cmdline.NewStringValueDefault("rr"),
		CacheCapacity:     cmdline.NewUintValueDefault(cache.DefaultCapacity),
		CacheTTL:          cmdline.NewUintValueDefault(uint(cache.DefaultTTL / time.Second)),
		SweepPeriod:       cmdline.NewUintValueDefault(0),
		HistoryLimit:      cmdline.NewUintValueDefault(DefaultHistoryLimit),
		SessionBufferSize: cmdline.NewUintValueDefault(session.DefaultBufferSize),
	}

	flag.Var(options.ExternalConfig, "config", "Configure YAML.")
	flag.Var(options.LogLevel, "log-level", "Log level.")
	flag.Var(options.Endpoint, "endpoint", "Chat protocol binding endpoint.")
	flag.Var(options.ManageEndpoint, "manage-endpoint", "Management API endpoint.")
	flag.Var(options.Workers, "workers", "Worker pool size. Can not be 0.")
	flag.Var(options.Policy, "policy", "Scheduling policy: rr or sjf.")
	flag.Var(options.CacheCapacity, "cache-capacity", "Message cache capacity.")
	flag.Var(options.CacheTTL, "cache-ttl", "Message cache TTL in seconds.")
	flag.Var(options.SweepPeriod, "cache-sweep-period", "Expiry sweep period in seconds. 0 disables the sweeper.")
	flag.Var(options.HistoryLimit, "history-limit", "Messages replayed on group join.")
	flag.Var(options.SessionBufferSize, "session-bufsize", "Max number of buffered outbound frames per session.")

	flag.Parse()

	// Load configure when external yaml is given.
	if options.ExternalConfig.Value != "" {
		ilog.Infof0("External configure: %v", options.ExternalConfig.Value)

		content, err := ioutil.ReadFile(options.ExternalConfig.Value)
		if err != nil {
			return nil, fmt.Errorf("Failed to load configure file: %v", err.Error())
		}

		externalConfig := &config.RelayConfigure{}
		if err = yaml.Unmarshal(content, externalConfig); err != nil {
			return nil, fmt.Errorf("Invalid configure format: %v", err.Error())
		}
		if err = options.SetDefaultFromConfigure(externalConfig); err != nil {
			return nil, fmt.Errorf("Invalid configure: %v", err.Error())
		}
	}

	if err = options.SetDefault(); err != nil {
		return nil, err
	}

	ilog.Info0("Configurations:")
	flag.VisitAll(func(fl *flag.Flag) {
		ilog.Info0("-" + fl.Name + "=" + fl.Value.String())
	})

	return options, nil
}
