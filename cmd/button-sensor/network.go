package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/sweeney/button-sensor/internal/status"
)

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// readNetworkInfo reads network state from the pi-helper env file. When the
// file is unset or unreadable the process environment is used instead.
// Returns nil if no network status is known.
func readNetworkInfo(path string) *status.NetworkInfo {
	get := os.Getenv
	if path != "" {
		if env, err := godotenv.Read(path); err == nil {
			get = func(k string) string { return env[k] }
		}
	}

	s := get(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       get(envNetworkType),
		IP:         get(envNetworkIP),
		Status:     s,
		Gateway:    get(envNetworkGateway),
		WifiStatus: get(envNetworkWifiStatus),
		SSID:       get(envNetworkWifiSSID),
	}
}
