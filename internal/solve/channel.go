package solve

import "strings"

// ChannelPriorityMode selects how the solver trades off channel
// precedence against the other optimization objectives.
type ChannelPriorityMode string

const (
	ChannelPriorityStrict   ChannelPriorityMode = "strict"
	ChannelPriorityFlexible ChannelPriorityMode = "flexible"
	ChannelPriorityDisabled ChannelPriorityMode = "disabled"
)

// Channel identifies the source of a record: a canonical name or URL
// plus the subdirs it is searched under.
type Channel struct {
	CanonicalName string
	Subdirs       []string
}

// InstalledChannel is the synthetic channel marking records read from
// the target prefix rather than a remote repository.
var InstalledChannel = Channel{CanonicalName: "@"}

// VirtualChannel is the synthetic channel marking virtual packages
// (__glibc, __cuda, ...).
var VirtualChannel = Channel{CanonicalName: "@virtual"}

func (c Channel) String() string { return c.CanonicalName }

// Multichannel is an ordered list of channels defining solver
// priority: lower index means higher priority.
type Multichannel struct {
	Channels []Channel
	Mode     ChannelPriorityMode
}

// PriorityOf returns the priority index of a channel's canonical name,
// or len(m.Channels) (below every listed channel) if the channel is not
// part of the ordered list (installed and
// virtual records are always priority 0, the strongest preference,
// since they represent what's already true of the environment).
func (m Multichannel) PriorityOf(canonicalName string) int {
	if canonicalName == InstalledChannel.CanonicalName || canonicalName == VirtualChannel.CanonicalName {
		return 0
	}
	for i, ch := range m.Channels {
		if ch.CanonicalName == canonicalName {
			return i
		}
	}
	return len(m.Channels)
}

// normalizeChannelName lowercases and strips any embedded auth
// fragment from a channel URL, the way canonical MatchSpec strings
// never carry credentials.
func normalizeChannelName(name string) string {
	trimmed := strings.TrimSpace(name)
	if idx := strings.Index(trimmed, "@"); idx >= 0 && strings.Contains(trimmed, "://") {
		schemeEnd := strings.Index(trimmed, "://") + 3
		if idx > schemeEnd {
			trimmed = trimmed[:schemeEnd] + trimmed[idx+1:]
		}
	}
	return trimmed
}
