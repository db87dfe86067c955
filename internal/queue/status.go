package queue

// DisplayStatus is the string shown to clients as the job's queueInfo. Known
// states keep their queue-native name, anything else reads "unknown". It says
// nothing about the job record's own status.
func DisplayStatus(s State) string {
	switch s {
	case StateWaiting, StateActive, StateDelayed, StateCompleted, StateFailed:
		return string(s)
	default:
		return string(StateUnknown)
	}
}
