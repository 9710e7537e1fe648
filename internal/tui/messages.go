package tui

// snapshotMsg carries the latest feed state into the update loop.
type snapshotMsg struct {
	snapshot Snapshot
}

// submitResultMsg reports the outcome of a submission.
type submitResultMsg struct {
	err  error
	text string
}

// updatesClosedMsg is sent once the snapshot channel is closed.
type updatesClosedMsg struct{}
