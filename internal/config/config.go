// Package config holds environment-specific configuration embedded at
// build time, following the same go:embed pattern used throughout this
// codebase: a value lives in its own small text file so a fleet deployment
// can swap it without touching source, and an empty override file falls
// back to a compiled-in default.
package config

import (
	_ "embed"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Defaults for operational configuration.
const (
	DefaultTelemetryInterval    = 5 * time.Second
	DefaultMaintenanceInterval  = 200 * time.Millisecond
	DefaultHelmetDebounce       = 50 * time.Millisecond
	DefaultMqttReconnectBackoff = 10 * time.Second
	DefaultValidateTimeout      = 15 * time.Second
	DefaultTerminateTimeout     = 15 * time.Second
	DefaultCellQueryTimeout     = 3 * time.Second
	DefaultAlertPageRevert      = 4 * time.Second
	DefaultLowBatteryThreshold  = 49
)

// Environment-specific configuration (must be provided via embedded text
// files at build time).
var (
	//go:embed mqtt_broker.text
	mqttBroker string

	//go:embed mqtt_client_id.text
	mqttClientID string

	//go:embed validate_req_topic_fmt.text
	validateReqTopicFmt string

	//go:embed update_topic_fmt.text
	updateTopicFmt string

	//go:embed terminate_req_topic_fmt.text
	terminateReqTopicFmt string

	//go:embed telemetry_topic_fmt.text
	telemetryTopicFmt string

	//go:embed alert_topic_fmt.text
	alertTopicFmt string

	//go:embed geo_api_url.text
	geoAPIURL string

	//go:embed bike_id.text
	bikeID string

	//go:embed telemetry_collector_addr.text
	telemetryCollectorAddr string
)

// Optional overrides for defaults (empty file = use default).
var (
	//go:embed telemetry_interval.text
	telemetryIntervalOverride string

	//go:embed mqtt_reconnect_backoff.text
	mqttReconnectBackoffOverride string
)

// MQTTBroker returns the MQTT broker address, "host:port".
func MQTTBroker() string { return overrideMQTTBroker(strings.TrimSpace(mqttBroker)) }

// MQTTClientID returns the MQTT client ID this controller connects as.
func MQTTClientID() string { return overrideMQTTClientID(strings.TrimSpace(mqttClientID)) }

// ValidateReqTopic returns the topic a reservation validation request
// publishes to: "/reservation/{bike_id}/validate".
func ValidateReqTopic() string {
	return fmt.Sprintf(strings.TrimSpace(validateReqTopicFmt), BikeID())
}

// UpdateTopicFmt returns the unformatted template for the reservation
// update topic this controller subscribes to, to be formatted with a trip
// ID by the caller. It serves both validate and terminate responses.
func UpdateTopicFmt() string { return strings.TrimSpace(updateTopicFmt) }

// TerminateReqTopicFmt returns the unformatted template for the
// termination request topic, to be formatted with (bike_id, trip_id) by
// the caller.
func TerminateReqTopicFmt() string { return strings.TrimSpace(terminateReqTopicFmt) }

// TelemetryTopic returns the topic periodic telemetry publishes to.
func TelemetryTopic() string {
	return fmt.Sprintf(strings.TrimSpace(telemetryTopicFmt), BikeID())
}

// AlertTopic returns the topic alert events publish to.
func AlertTopic() string {
	return fmt.Sprintf(strings.TrimSpace(alertTopicFmt), BikeID())
}

// GeoAPIURL returns the HTTP endpoint the geolocation lookup task posts to.
func GeoAPIURL() string { return overrideGeoAPIURL(strings.TrimSpace(geoAPIURL)) }

// TelemetryCollectorAddr returns the "host:port" address the telemetry
// sender dials to push queued logs and metrics.
func TelemetryCollectorAddr() (netip.AddrPort, error) {
	return netip.ParseAddrPort(strings.TrimSpace(telemetryCollectorAddr))
}

// BikeID returns this vehicle's identifier, stamped into Telemetry/Alert
// records.
func BikeID() string { return overrideBikeID(strings.TrimSpace(bikeID)) }

// TelemetryInterval returns how often telemetry is emitted. Returns
// DefaultTelemetryInterval unless overridden.
func TelemetryInterval() time.Duration {
	d := DefaultTelemetryInterval
	if v, ok := parseDurationOverride(telemetryIntervalOverride); ok {
		d = v
	}
	return overrideTelemetryInterval(d)
}

// MQTTReconnectBackoff returns the minimum interval between MQTT reconnect
// attempts. Returns DefaultMqttReconnectBackoff unless overridden.
func MQTTReconnectBackoff() time.Duration {
	d := DefaultMqttReconnectBackoff
	if v, ok := parseDurationOverride(mqttReconnectBackoffOverride); ok {
		d = v
	}
	return overrideReconnectBackoff(d)
}

func parseDurationOverride(raw string) (time.Duration, bool) {
	override := strings.TrimSpace(raw)
	if override == "" {
		return 0, false
	}
	d, err := time.ParseDuration(override)
	if err != nil {
		return 0, false
	}
	return d, true
}

// Override hooks let the host simulation harness layer a YAML config file
// on top of these embedded defaults (see yaml_override.go). The firmware
// build never rewires them, so they stay the identity function.
var (
	overrideMQTTBroker        = identityString
	overrideMQTTClientID      = identityString
	overrideGeoAPIURL         = identityString
	overrideBikeID            = identityString
	overrideTelemetryInterval = identityDuration
	overrideReconnectBackoff  = identityDuration
)

func identityString(s string) string { return s }

func identityDuration(d time.Duration) time.Duration { return d }
