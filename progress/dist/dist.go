package dist

// Phase is a stage of fetching a package archive from a distribution host.
type Phase int

const (
	PhaseDownload Phase = iota // Archive transfer; BytesDone grows.
	PhaseVerify                // Checksum compared against the descriptor.
	PhaseExtract               // Archive unpacked into staging.
	PhaseCommit                // Moving content into place and recording it.
	PhaseDone                  // Package stored.
)

func (p Phase) String() string {
	switch p {
	case PhaseDownload:
		return "download"
	case PhaseVerify:
		return "verify"
	case PhaseExtract:
		return "extract"
	case PhaseCommit:
		return "commit"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event describes one archive fetch progress update.
type Event struct {
	Phase      Phase
	Package    string
	BytesTotal int64 // Archive size; -1 if unknown.
	BytesDone  int64 // Bytes transferred so far.
}
