package pipeline

import "github.com/tradsys-labs/exchange-core/internal/domain"

// GroupingProcessor assigns Group values to commands as they cross the
// first stage boundary (§4.11): a group closes when it reaches
// msgsInGroupLimit commands, when maxGroupDurationNs has elapsed since
// the group opened, or when a SHUTDOWN_SIGNAL or forced-publish command
// is seen. Groups are the unit the two-step master hands to its slave.
type GroupingProcessor struct {
	msgsInGroupLimit int
	maxGroupDuration int64 // nanoseconds

	currentGroup domain.Group
	groupOpened  int64 // timestamp of the first command in the current group
	groupCount   int
}

func NewGroupingProcessor(msgsInGroupLimit int, maxGroupDurationNs int64) *GroupingProcessor {
	return &GroupingProcessor{msgsInGroupLimit: msgsInGroupLimit, maxGroupDuration: maxGroupDurationNs}
}

// Assign stamps cmd with the current group and reports whether this
// command closes the group (a boundary the two-step master must publish
// and hand off on).
func (g *GroupingProcessor) Assign(cmd *domain.OrderCommand, now int64) (boundary bool) {
	if g.groupCount == 0 {
		g.groupOpened = now
	}
	cmd.Group = g.currentGroup
	g.groupCount++

	forced := cmd.Type == domain.CommandShutdownSignal ||
		cmd.Type == domain.CommandGroupingControl ||
		cmd.Type == domain.CommandReset

	durationExceeded := g.maxGroupDuration > 0 && now-g.groupOpened >= g.maxGroupDuration
	countExceeded := g.msgsInGroupLimit > 0 && g.groupCount >= g.msgsInGroupLimit

	if forced || durationExceeded || countExceeded {
		g.currentGroup++
		g.groupCount = 0
		return true
	}
	return false
}
