//go:build !tinygo

package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Overrides is the host simulation harness's config-file shape: every field
// optional, layered on top of the embedded defaults. The firmware build has
// no filesystem to read this from and relies on the embedded text files
// alone.
type Overrides struct {
	MQTTBroker           string `yaml:"mqtt_broker"`
	MQTTClientID         string `yaml:"mqtt_client_id"`
	BikeID               string `yaml:"bike_id"`
	GeoAPIURL            string `yaml:"geo_api_url"`
	TelemetryInterval    string `yaml:"telemetry_interval"`
	MQTTReconnectBackoff string `yaml:"mqtt_reconnect_backoff"`
}

// LoadYAMLOverrides reads path and layers its fields over the embedded
// defaults; a missing or empty field keeps the embedded value. It is
// intended to be called once, at startup, by cmd/simhost.
func LoadYAMLOverrides(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var o Overrides
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return err
	}
	apply(o)
	return nil
}

func apply(o Overrides) {
	if o.MQTTBroker != "" {
		overrideMQTTBroker = func(string) string { return o.MQTTBroker }
	}
	if o.MQTTClientID != "" {
		overrideMQTTClientID = func(string) string { return o.MQTTClientID }
	}
	if o.BikeID != "" {
		overrideBikeID = func(string) string { return o.BikeID }
	}
	if o.GeoAPIURL != "" {
		overrideGeoAPIURL = func(string) string { return o.GeoAPIURL }
	}
	if d, err := time.ParseDuration(o.TelemetryInterval); err == nil {
		overrideTelemetryInterval = func(time.Duration) time.Duration { return d }
	}
	if d, err := time.ParseDuration(o.MQTTReconnectBackoff); err == nil {
		overrideReconnectBackoff = func(time.Duration) time.Duration { return d }
	}
}
