package types

import "time"

const (
	CommandSleep  = "sleep"
	CommandStatus = "status"
)

// Command is received on sensors/{serialNumber}/command.
type Command struct {
	Command string `json:"command"`
}

// StatusReply answers a status command on sensors/{serialNumber}/status.
type StatusReply struct {
	SerialNumber string    `json:"serialNumber"`
	Status       string    `json:"status,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
