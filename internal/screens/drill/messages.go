package drill

// opDoneMsg is sent when an engine call issued from a command returns.
type opDoneMsg struct {
	Op  string
	Err error
}

// ShowHistoryMsg asks the host to open the session history.
type ShowHistoryMsg struct{}
