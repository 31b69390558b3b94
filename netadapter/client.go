package netadapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Leasehold/leasehold/chainerrors"
	"github.com/Leasehold/leasehold/types"
)

// requestTimeout bounds a single outbound peer request.
const requestTimeout = 10 * time.Second

// Client is the outbound half of the peer transport: it resolves a
// peerID to a dial address via the shared PeerBook and issues plain
// JSON-over-HTTP requests, mirroring the request/response shapes Server
// answers on the other end.
type Client struct {
	selfID      string
	selfAddr    string
	moduleAlias string
	broadhash   func() string
	book        *PeerBook
	http        *http.Client
}

// NewClient builds a Client that identifies itself as selfID, reachable
// back at selfAddr, advertising moduleAlias and whatever broadhash
// currently returns on every outbound request.
func NewClient(selfID, selfAddr, moduleAlias string, broadhash func() string, book *PeerBook) *Client {
	return &Client{
		selfID:      selfID,
		selfAddr:    selfAddr,
		moduleAlias: moduleAlias,
		broadhash:   broadhash,
		book:        book,
		http:        &http.Client{Timeout: requestTimeout},
	}
}

func (c *Client) setIdentityHeaders(h http.Header) {
	h.Set(peerIDHeader, c.selfID)
	h.Set(peerAddrHeader, c.selfAddr)
	if c.moduleAlias != "" {
		h.Set(moduleAliasHeader, c.moduleAlias)
	}
	if c.broadhash != nil {
		h.Set(broadhashHeader, c.broadhash())
	}
}

func (c *Client) addrOf(peerID string) (string, error) {
	addr, ok := c.book.Addr(peerID)
	if !ok {
		return "", chainerrors.NewNetworkError("unknown peer "+peerID, nil)
	}
	return addr, nil
}

func (c *Client) post(peerID, path string, body, out interface{}) error {
	addr, err := c.addrOf(peerID)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return chainerrors.NewNetworkError("encoding request to "+peerID, err)
		}
	}

	req, err := http.NewRequest(http.MethodPost, addr+path, &buf)
	if err != nil {
		return chainerrors.NewNetworkError("building request to "+peerID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setIdentityHeaders(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return chainerrors.NewNetworkError("calling "+peerID+path, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func (c *Client) get(peerID, path string, out interface{}) error {
	addr, err := c.addrOf(peerID)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodGet, addr+path, nil)
	if err != nil {
		return chainerrors.NewNetworkError("building request to "+peerID, err)
	}
	c.setIdentityHeaders(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return chainerrors.NewNetworkError("calling "+peerID+path, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return chainerrors.NewNetworkError(fmt.Sprintf("peer returned %d: %s", resp.StatusCode, errResp.Error), nil)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return chainerrors.NewNetworkError("decoding peer response", err)
	}
	return nil
}

// Send delivers one announcement to peerID over api. Implements
// broadcaster.Sender.
func (c *Client) Send(peerID, api string, data interface{}) error {
	return c.post(peerID, "/"+api, data, nil)
}

// ChooseForwardPeer delegates to the shared PeerBook. Implements
// loader.Transport.
func (c *Client) ChooseForwardPeer() (string, bool, error) {
	return c.book.ChooseForwardPeer()
}

// BlocksCommon asks peerID which of candidateIDs it knows. Implements
// loader.Transport.
func (c *Client) BlocksCommon(peerID string, candidateIDs []string) (string, bool, error) {
	var resp blocksCommonResponse
	if err := c.post(peerID, "/blocksCommon", blocksCommonRequest{CandidateIDs: candidateIDs}, &resp); err != nil {
		return "", false, err
	}
	return resp.BlockID, resp.Found, nil
}

// FetchBlocks retrieves up to limit blocks after afterID from peerID.
// Implements loader.Transport.
func (c *Client) FetchBlocks(peerID, afterID string, limit int) ([]*types.Block, error) {
	query := url.Values{}
	query.Set("after", afterID)
	query.Set("limit", strconv.Itoa(limit))

	var blocks []*types.Block
	if err := c.get(peerID, "/blocks?"+query.Encode(), &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// FetchTransactions retrieves peerID's current mempool listing.
// Implements loader.Transport.
func (c *Client) FetchTransactions(peerID string) ([]*types.Transaction, error) {
	var txs []*types.Transaction
	if err := c.get(peerID, "/transactions", &txs); err != nil {
		return nil, err
	}
	return txs, nil
}
