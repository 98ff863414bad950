// Package constants defines shared protocol constants and defaults.
package constants

import "time"

const (
	// ConfigFile is the default configuration file name.
	ConfigFile = "config.yaml"

	// MulticastGroup is the discovery multicast group. Random address in the
	// "administrative" block, matching the IDE-side plugin.
	MulticastGroup = "239.172.243.75"

	// DiscoveryPort is the well-known UDP port discovery queries arrive on.
	DiscoveryPort = 1900

	// SearchTarget identifies this protocol in discovery queries and replies.
	// Queries carrying any other ST value are ignored.
	SearchTarget = "fusion_idea:debug"

	// DiscoveryRequestLine is the only request line a discovery query may carry.
	DiscoveryRequestLine = "M-SEARCH * HTTP/1.1"

	// DiscoveryDirective is the required MAN header value, quotes included.
	DiscoveryDirective = `"ssdp:discover"`

	// CommandHost is the address the command listener binds to. Loopback only;
	// the port is assigned by the OS so several instances can coexist.
	CommandHost = "127.0.0.1"

	// DefaultInterpreter launches scripts when no interpreter is configured.
	DefaultInterpreter = "python3"

	// DefaultQueueCapacity bounds the dispatcher queue. Enqueue never blocks;
	// overflowing the queue is reported as a dispatch failure instead.
	DefaultQueueCapacity = 64

	// StopTimeout bounds graceful shutdown of the command listener.
	StopTimeout = 5 * time.Second
)
