package redis

const (
	// KeyHistory is the capped list of play records, newest first
	KeyHistory = "iptv:history"
	// KeyUsage is the hash of channel name -> play count
	KeyUsage = "iptv:usage"
	// KeyClockState is the last successful clock sync
	KeyClockState = "iptv:clock:last_good"
)
