package models

const (
	EventClientCreated = "client_created"
	EventClientUpdated = "client_updated"
	EventClientDeleted = "client_deleted"
)

// ClientEvent is published after every successful mutation.
type ClientEvent struct {
	Event string `json:"event"`
	Data  Client `json:"data"`
}
