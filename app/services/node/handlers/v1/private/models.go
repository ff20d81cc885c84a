package private

// registerPeer is the payload a node sends to announce itself.
type registerPeer struct {
	Host string `json:"host" validate:"required,hostname_port"`
}
