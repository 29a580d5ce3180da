package installer

// State is the lifecycle of an Installer. States only move forward.
type State int

const (
	// StateInitial accepts AddPackage.
	StateInitial State = iota
	// StateReady waits for every descriptor.
	StateReady
	// StateStarted runs the download stage.
	StateStarted
	// StateDone is terminal.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateReady:
		return "ready"
	case StateStarted:
		return "started"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// transition tells the caller of advance what to do once the package lock
// is released.
type transition int

const (
	transitionNone transition = iota
	transitionStarted
	transitionDone
)

// advance performs at most one state transition and is the only place that
// moves Ready->Started, Ready->Done and Started->Done. Both DonePackages and
// the descriptor stage call it, so whichever finishes last wins the race.
// Must be called with i.mu held.
func (i *Installer) advance() transition {
	if i.destroyed {
		return transitionNone
	}
	switch i.state {
	case StateReady:
		if len(i.needDesc) > 0 || i.resolving > 0 {
			return transitionNone
		}
		if len(i.needDownload) > 0 {
			i.state = StateStarted
			i.downloadActive = true
			return transitionStarted
		}
		if !i.allNotified() {
			return transitionNone
		}
		i.finishRun()
		return transitionDone
	case StateStarted:
		if !i.allNotified() {
			return transitionNone
		}
		i.finishRun()
		return transitionDone
	default:
		return transitionNone
	}
}

func (i *Installer) finishRun() {
	i.state = StateDone
	i.success = true
	for _, pp := range i.packages {
		i.success = i.success && pp.success
	}
}

func (i *Installer) allNotified() bool {
	for _, pp := range i.packages {
		if !pp.notified {
			return false
		}
	}
	return true
}
