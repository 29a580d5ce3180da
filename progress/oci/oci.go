package oci

// Phase is a stage of fetching a package published as an OCI artifact.
type Phase int

const (
	PhaseResolve Phase = iota // Manifest fetched, layer count and size known.
	PhaseBytes                // Compressed layer bytes read.
	PhaseLayer                // One layer extracted.
	PhaseCommit               // Moving content into place and recording it.
	PhaseDone                 // Package stored.
)

// Event describes one OCI fetch progress update.
type Event struct {
	Phase      Phase
	Package    string
	Index      int    // Layer index; -1 for package-wide phases.
	Total      int    // Number of layers.
	Digest     string // Short layer digest for PhaseLayer.
	BytesTotal int64  // Sum of compressed layer sizes.
	BytesDone  int64  // Bytes read by this event (PhaseBytes only).
}
