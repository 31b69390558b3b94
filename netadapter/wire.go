package netadapter

// peerIDHeader carries the caller's own node id on every request.
// peerAddrHeader carries the base URL peers should use to reach the
// caller back, so the receiving side can register it against that id in
// its PeerBook on first contact.
const (
	peerIDHeader   = "X-Leasehold-Peer-Id"
	peerAddrHeader = "X-Leasehold-Peer-Addr"

	// moduleAliasHeader/broadhashHeader piggyback this node's current
	// consensus-relevant state on every outbound request, so a peer can
	// keep its PeerBook's advertised state fresh without a dedicated
	// gossip endpoint.
	moduleAliasHeader = "X-Leasehold-Module-Alias"
	broadhashHeader   = "X-Leasehold-Broadhash"
)

type errorResponse struct {
	Error string `json:"error"`
}

type blocksCommonRequest struct {
	CandidateIDs []string `json:"candidateIds"`
}

type blocksCommonResponse struct {
	BlockID string `json:"blockId"`
	Found   bool   `json:"found"`
}

type postTransactionResponse struct {
	ID string `json:"id"`
}
