package election

import "errors"

var (
	// ErrElectionInProgress is returned when Announce is called for a
	// region that already has a non-expired active election.
	ErrElectionInProgress = errors.New("election: already in progress for region")

	// ErrNoCandidates names an election whose candidacy phase ends with no
	// eligible candidates recorded. Tick does not return it: such an
	// election stays in Candidacy and is discarded, with a logged warning,
	// once the whole election phase has elapsed.
	ErrNoCandidates = errors.New("election: no candidates")

	// ErrInsufficientVotes names a finalization without quorum. Tick does
	// not return it: finalization logs a warning and discards the election.
	ErrInsufficientVotes = errors.New("election: insufficient votes for quorum")

	// ErrIneligibleCandidate is returned when a NexusCandidacy fails the
	// uptime/bandwidth/reputation eligibility gate.
	ErrIneligibleCandidate = errors.New("election: ineligible candidate")

	// ErrUnknownElection is returned when a message references an election
	// ID the local node is not tracking.
	ErrUnknownElection = errors.New("election: unknown election id")
)
