package installer

// Observer receives the progress of a run. Methods are called from a single
// dispatch goroutine, never concurrently, in the order events were posted.
// A panic in one method is recovered and logged; later events still arrive.
type Observer interface {
	DownloadStarted()
	PackageStarted(ref PackageRef)
	PackageProgress(ref PackageRef, ratio float64)
	DownloadProgress(ratio float64)
	PackageFinished(ref PackageRef, success bool)
	DownloadFinished(success bool)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) DownloadStarted()                    {}
func (NopObserver) PackageStarted(PackageRef)           {}
func (NopObserver) PackageProgress(PackageRef, float64) {}
func (NopObserver) DownloadProgress(float64)            {}
func (NopObserver) PackageFinished(PackageRef, bool)    {}
func (NopObserver) DownloadFinished(bool)               {}

// ObserverFuncs implements Observer with optional callbacks; nil fields are
// skipped.
type ObserverFuncs struct {
	OnDownloadStarted  func()
	OnPackageStarted   func(PackageRef)
	OnPackageProgress  func(PackageRef, float64)
	OnDownloadProgress func(float64)
	OnPackageFinished  func(PackageRef, bool)
	OnDownloadFinished func(bool)
}

func (f ObserverFuncs) DownloadStarted() {
	if f.OnDownloadStarted != nil {
		f.OnDownloadStarted()
	}
}

func (f ObserverFuncs) PackageStarted(ref PackageRef) {
	if f.OnPackageStarted != nil {
		f.OnPackageStarted(ref)
	}
}

func (f ObserverFuncs) PackageProgress(ref PackageRef, ratio float64) {
	if f.OnPackageProgress != nil {
		f.OnPackageProgress(ref, ratio)
	}
}

func (f ObserverFuncs) DownloadProgress(ratio float64) {
	if f.OnDownloadProgress != nil {
		f.OnDownloadProgress(ratio)
	}
}

func (f ObserverFuncs) PackageFinished(ref PackageRef, success bool) {
	if f.OnPackageFinished != nil {
		f.OnPackageFinished(ref, success)
	}
}

func (f ObserverFuncs) DownloadFinished(success bool) {
	if f.OnDownloadFinished != nil {
		f.OnDownloadFinished(success)
	}
}
