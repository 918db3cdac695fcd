package domain

// MailboxStats is a point-in-time view of one peer's outbound queue.
type MailboxStats struct {
	Peer     PeerID
	Username string
	Length   int
	Capacity int
}

// Load returns the fill ratio of the mailbox, between 0 and 1.
func (s MailboxStats) Load() float64 {
	if s.Capacity <= 0 {
		return 0
	}
	return float64(s.Length) / float64(s.Capacity)
}
