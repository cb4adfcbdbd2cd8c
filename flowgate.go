// Package flowgate serves the encrypted data-exchange endpoint and the
// webhook receiver of a messaging platform's guided interactions
package flowgate

const (
	// Name is the service name reported in logs and health responses
	Name = "flowgate"

	// Version is the service version
	Version = "1.0.0"
)
