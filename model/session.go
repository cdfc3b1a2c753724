package model

import "time"

// Session is one connected remote device. The session id is embedded in the
// token handed to the device; the server-side session table stays the
// authority on validity.
type Session struct {
	ID            string    `json:"id"`
	DeviceID      string    `json:"deviceId"`
	DeviceName    string    `json:"deviceName"`
	Version       string    `json:"version,omitempty"`
	Platform      string    `json:"platform,omitempty"`
	EstablishedAt time.Time `json:"establishedAt"`
	LastSeenAt    time.Time `json:"lastSeenAt"`
}
