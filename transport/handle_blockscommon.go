package transport

import "github.com/Leasehold/leasehold/chainerrors"

// BlocksCommon returns the first of candidateIDs that matches a locally
// known block, for a peer's fork detection. candidateIDs is capped at
// MaxCommonCandidates.
func (t *Transport) BlocksCommon(peerID string, candidateIDs []string) (string, bool, error) {
	if len(candidateIDs) > MaxCommonCandidates {
		return "", false, t.penalize(peerID, "too many blocksCommon candidates")
	}

	id, found, err := t.cfg.Common.FindCommonBlock(candidateIDs)
	if err != nil {
		return "", false, chainerrors.NewPersistenceError("finding common block", err)
	}
	return id, found, nil
}
