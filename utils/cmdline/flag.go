// Package cmdline supplies flag.Value implementations that remember whether
// a flag was explicitly set, so values from an external configure file can
// fill in only the untouched ones.
package cmdline

import (
	"fmt"
	"strconv"
	"strings"
)

// UintValue
type UintValue struct {
	Value     uint
	IsDefault bool
}

func NewUintValueDefault(defaultValue uint) *UintValue {
	return &UintValue{
		Value:     defaultValue,
		IsDefault: true,
	}
}

func (val *UintValue) Set(raw string) error {
	actual, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return err
	}
	val.IsDefault = false
	val.Value = uint(actual)
	return nil
}

func (val *UintValue) String() string {
	return strconv.FormatUint(uint64(val.Value), 10)
}

// StringValue
type StringValue struct {
	Value     string
	IsDefault bool
}

func NewStringValueDefault(defaultValue string) *StringValue {
	return &StringValue{
		Value:     defaultValue,
		IsDefault: true,
	}
}

func NewStringValue() *StringValue {
	return NewStringValueDefault("")
}

func (val *StringValue) Set(raw string) error {
	val.Value = raw
	val.IsDefault = false
	return nil
}

func (val *StringValue) String() string {
	return val.Value
}

// BoolValue
type BoolValue struct {
	Value     bool
	IsDefault bool
}

func NewBoolValueDefault(defaultValue bool) *BoolValue {
	return &BoolValue{
		Value:     defaultValue,
		IsDefault: true,
	}
}

func (val *BoolValue) Set(raw string) error {
	switch strings.ToLower(raw) {
	case "true":
		val.Value = true
	case "false":
		val.Value = false
	default:
		return fmt.Errorf("Invalid value: %v", raw)
	}
	val.IsDefault = false
	return nil
}

// IsBoolFlag lets the flag package accept the bare form without a value.
func (val *BoolValue) IsBoolFlag() bool {
	return true
}

func (val *BoolValue) String() string {
	if val.Value {
		return "true"
	}
	return "false"
}

// NetEndpointValue holds a parsed [scheme://]host[:port] endpoint.
type NetEndpointValue struct {
	Scheme       string
	Host         string
	Port         uint32
	HasPort      bool
	IsDefault    bool
	ValidSchemes []string
}

func NewNetEndpointValueDefault(validSchemes []string, netEndpoint string) (*NetEndpointValue, error) {
	instance := &NetEndpointValue{
		ValidSchemes: validSchemes,
	}
	if err := instance.Set(netEndpoint); err != nil {
		return nil, err
	}
	instance.IsDefault = true
	return instance, nil
}

func (val *NetEndpointValue) IsSchemeValid(scheme string) bool {
	for _, valid := range val.ValidSchemes {
		if scheme == valid {
			return true
		}
	}
	return false
}

func (val *NetEndpointValue) setAuthority(authority string) error {
	if strings.ContainsAny(authority, "/@") {
		return fmt.Errorf("Invalid character in authority: %v", authority)
	}

	host, port := authority, ""
	if idx := strings.LastIndex(authority, ":"); idx != -1 {
		host, port = authority[:idx], authority[idx+1:]
	}

	val.HasPort = false
	val.Port = 0
	if port != "" {
		actual, err := strconv.ParseUint(port, 10, 32)
		if err != nil {
			return fmt.Errorf("Port should be an integer: %v", port)
		}
		val.Port = uint32(actual)
		val.HasPort = true
	}
	val.Host = host
	return nil
}

func (val *NetEndpointValue) Set(raw string) error {
	scheme, authority := "", raw

	if raw != "" {
		if idx := strings.Index(raw, "://"); idx != -1 {
			scheme, authority = raw[:idx], raw[idx+3:]
			if !val.IsSchemeValid(scheme) {
				return fmt.Errorf("Unsupported network endpoint scheme: %v", scheme)
			}
		}
		if err := val.setAuthority(authority); err != nil {
			return fmt.Errorf("Invalid authority format: %v", err.Error())
		}
	} else {
		val.Host, val.Port, val.HasPort = "", 0, false
	}

	val.Scheme = scheme
	val.IsDefault = false
	return nil
}

func (val *NetEndpointValue) String() string {
	if val.Scheme == "" {
		return val.AuthorityString()
	}
	return val.Scheme + "://" + val.AuthorityString()
}

// AuthorityString renders host[:port], the form net.Listen expects.
func (val *NetEndpointValue) AuthorityString() string {
	if !val.HasPort {
		return val.Host
	}
	return fmt.Sprintf("%v:%v", val.Host, val.Port)
}
