package appendship

// Version information for the appendship agent.
const (
	// Version is the current version of the agent.
	Version = "1.0.0"

	// MinCompatibleVersion is the minimum version that is compatible with this version.
	MinCompatibleVersion = "1.0.0"
)
