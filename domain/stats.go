package domain

// Stats is a point-in-time view of the relay.
type Stats struct {
	Connections     int
	Rooms           int
	Online          int
	Known           int
	TrackedMessages int
	Queued          int // inbound events waiting for the loop
	QueueCapacity   int
}
