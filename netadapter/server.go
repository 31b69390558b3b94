package netadapter

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Leasehold/leasehold/types"
)

// Handlers is the narrow inbound surface Server dispatches onto;
// satisfied by *transport.Transport.
type Handlers interface {
	PostBlock(peerID string, block *types.Block) error
	PostTransaction(peerID string, tx *types.Transaction) (string, error)
	PostTransactions(peerID string, txs []*types.Transaction) error
	Blocks(lastBlockID string) ([]*types.Block, error)
	BlocksCommon(peerID string, candidateIDs []string) (string, bool, error)
	GetTransactions() []*types.Transaction
}

// Server is the inbound half of the peer transport: a gorilla/mux
// router translating JSON-over-HTTP requests into Handlers calls,
// registering the caller of every request into the shared PeerBook.
// Modeled on apiserver/server's makeHandler/route-table dispatch.
type Server struct {
	cfg    Handlers
	book   *PeerBook
	router *mux.Router
	http   *http.Server
}

// NewServer builds a Server dispatching onto cfg and recording callers
// into book.
func NewServer(addr string, cfg Handlers, book *PeerBook) *Server {
	s := &Server{cfg: cfg, book: book, router: mux.NewRouter()}
	s.addRoutes()
	s.http = &http.Server{Addr: addr, Handler: s.router}
	return s
}

// ListenAndServe blocks serving inbound peer requests until the server
// is shut down.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) addRoutes() {
	s.router.HandleFunc("/postBlock", s.withPeer(s.postBlock)).Methods(http.MethodPost)
	s.router.HandleFunc("/postTransaction", s.withPeer(s.postTransaction)).Methods(http.MethodPost)
	s.router.HandleFunc("/postTransactions", s.withPeer(s.postTransactions)).Methods(http.MethodPost)
	s.router.HandleFunc("/blocks", s.withPeer(s.blocks)).Methods(http.MethodGet)
	s.router.HandleFunc("/blocksCommon", s.withPeer(s.blocksCommon)).Methods(http.MethodPost)
	s.router.HandleFunc("/transactions", s.withPeer(s.transactions)).Methods(http.MethodGet)
}

// withPeer registers the caller into the PeerBook (if it identified
// itself) before running handler.
func (s *Server) withPeer(handler func(peerID string, w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		peerID := r.Header.Get(peerIDHeader)
		if peerID != "" {
			if addr := r.Header.Get(peerAddrHeader); addr != "" {
				s.book.Register(peerID, addr)
			}
			if moduleAlias := r.Header.Get(moduleAliasHeader); moduleAlias != "" {
				s.book.Advertise(peerID, moduleAlias, r.Header.Get(broadhashHeader))
			}
		}
		handler(peerID, w, r)
	}
}

func sendJSON(w http.ResponseWriter, response interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Errorf("failed encoding response: %s", err)
	}
}

func sendError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	sendJSON(w, errorResponse{Error: message})
}

func (s *Server) postBlock(peerID string, w http.ResponseWriter, r *http.Request) {
	var block types.Block
	if err := json.NewDecoder(r.Body).Decode(&block); err != nil {
		sendError(w, http.StatusBadRequest, "malformed block")
		return
	}
	if err := s.cfg.PostBlock(peerID, &block); err != nil {
		sendError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	sendJSON(w, struct{}{})
}

func (s *Server) postTransaction(peerID string, w http.ResponseWriter, r *http.Request) {
	var tx types.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		sendError(w, http.StatusBadRequest, "malformed transaction")
		return
	}
	id, err := s.cfg.PostTransaction(peerID, &tx)
	if err != nil {
		sendError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	sendJSON(w, postTransactionResponse{ID: id})
}

func (s *Server) postTransactions(peerID string, w http.ResponseWriter, r *http.Request) {
	var txs []*types.Transaction
	if err := json.NewDecoder(r.Body).Decode(&txs); err != nil {
		sendError(w, http.StatusBadRequest, "malformed transactions")
		return
	}
	if err := s.cfg.PostTransactions(peerID, txs); err != nil {
		sendError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	sendJSON(w, struct{}{})
}

func (s *Server) blocks(peerID string, w http.ResponseWriter, r *http.Request) {
	blocks, err := s.cfg.Blocks(r.URL.Query().Get("after"))
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendJSON(w, blocks)
}

func (s *Server) blocksCommon(peerID string, w http.ResponseWriter, r *http.Request) {
	var req blocksCommonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "malformed blocksCommon request")
		return
	}
	id, found, err := s.cfg.BlocksCommon(peerID, req.CandidateIDs)
	if err != nil {
		sendError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	sendJSON(w, blocksCommonResponse{BlockID: id, Found: found})
}

func (s *Server) transactions(peerID string, w http.ResponseWriter, r *http.Request) {
	sendJSON(w, s.cfg.GetTransactions())
}
