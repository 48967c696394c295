package session

import "time"

// Status is the read-only snapshot handed to the presentation layer. It is a
// value copy; readers never observe a partially updated transition.
type Status struct {
	Enabled       bool      `json:"enabled"`
	Temporary     bool      `json:"temporary"`
	Deadline      time.Time `json:"deadline"`
	Preset        string    `json:"preset"`
	DownMbps      int       `json:"down_mbps"`
	UpMbps        int       `json:"up_mbps"`
	Interface     string    `json:"iface"`
	SSID          string    `json:"ssid"`
	AutoInterface bool      `json:"iface_auto"`
	LastNotice    string    `json:"last_notice"`
}
