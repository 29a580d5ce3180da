package installer

// pendingPackage is the per-run record of one package.
//
// Fields up to notified are guarded by Installer.mu; startedNotified,
// finishedNotified and reported are guarded by gate.mu.
type pendingPackage struct {
	ref  PackageRef
	host Host
	desc Descriptor

	// effort is fixed once done is set.
	effort float64

	// done and success are set together, exactly once.
	done    bool
	success bool
	// notified is set once PackageFinished has been posted; the run is
	// complete only when every package is notified.
	notified bool

	startedNotified  bool
	finishedNotified bool
	reported         float64
}

func newPendingPackage(ref PackageRef) *pendingPackage {
	return &pendingPackage{ref: ref}
}
