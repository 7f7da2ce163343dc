package config

// Structures mapped from the external YAML configure. Values left zero fall
// back to flag defaults during the merge in server/relay.

type CacheConfigure struct {
	Capacity    uint `yaml:"capacity,omitempty"`
	TTL         uint `yaml:"ttl,omitempty"`
	SweepPeriod uint `yaml:"sweep-period,omitempty"`
}

type SchedulerConfigure struct {
	Workers uint   `yaml:"workers,omitempty"`
	Policy  string `yaml:"policy,omitempty"`
}

type HTTPManagementAPIConfigure struct {
	Endpoint string `yaml:"endpoint,omitempty"`
}

type RelayConfigure struct {
	LogLevel uint `yaml:"log-level,omitempty"`

	Endpoint string `yaml:"endpoint,omitempty"`

	HistoryLimit      uint `yaml:"history-limit,omitempty"`
	SessionBufferSize uint `yaml:"session-bufsize,omitempty"`

	Cache     CacheConfigure             `yaml:"cache,omitempty"`
	Scheduler SchedulerConfigure         `yaml:"scheduler,omitempty"`
	Manage    HTTPManagementAPIConfigure `yaml:"manage,omitempty"`
}
