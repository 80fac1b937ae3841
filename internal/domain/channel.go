package domain

// Channel is a named stream whose URL is stored as a template.
//
// Template holds the pattern exactly as it will be resolved at play time:
// it may contain the {server} and {timestamp} placeholders, or be a literal
// address (for example a raw rtp:// multicast group). A resolved URL is never
// stored in a Channel.
type Channel struct {
	Name     string `json:"name" yaml:"name"`
	Template string `json:"template" yaml:"template"`
}

const (
	// PlaceholderServer is substituted with a host:port picked from the server pool.
	PlaceholderServer = "{server}"
	// PlaceholderTimestamp is substituted with the corrected-time token.
	PlaceholderTimestamp = "{timestamp}"
)
