// Package contracts defines the shared data contracts of the wallet
// request/consent core: request and response envelopes, the closed set
// of provider methods with their typed parameters, sessions, queued
// events, and the protocol error taxonomy.
//
// All four durable entities (RequestEnvelope, Session, QueuedEvent,
// Transaction groups) are owned by the core; the UI and pages only
// ever see copies.
package contracts

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the closed set of provider methods. Dispatch is an
// exhaustive switch over Kind; there is no default branch for
// unknown methods past envelope decoding.
type Kind string

const (
	KindDiscover         Kind = "discover"
	KindEnable           Kind = "enable"
	KindDisable          Kind = "disable"
	KindSignTransactions Kind = "sign_transactions"
	KindSignMessage      Kind = "sign_message"
)

// Kinds lists every provider method, in protocol order.
func Kinds() []Kind {
	return []Kind{KindDiscover, KindEnable, KindDisable, KindSignTransactions, KindSignMessage}
}

// Valid reports whether k names a known provider method.
func (k Kind) Valid() bool {
	switch k {
	case KindDiscover, KindEnable, KindDisable, KindSignTransactions, KindSignMessage:
		return true
	}
	return false
}

// Network identifies a chain by its genesis pair. Both fields
// participate in session identity.
type Network struct {
	GenesisHash string `json:"genesis_hash"`
	GenesisID   string `json:"genesis_id"`
	// Methods the wallet supports on this network.
	Methods []Kind `json:"methods,omitempty"`
}

// Key returns the identity key used for session uniqueness.
func (n Network) Key() string {
	return n.GenesisHash + "/" + n.GenesisID
}

// Matches reports whether ref names this network by genesis hash or
// by human-readable genesis id.
func (n Network) Matches(ref string) bool {
	return ref != "" && (ref == n.GenesisHash || ref == n.GenesisID)
}

// Supports reports whether the wallet offers method k on this network.
// An empty method set means no restriction.
func (n Network) Supports(k Kind) bool {
	if len(n.Methods) == 0 {
		return true
	}
	for _, m := range n.Methods {
		if m == k {
			return true
		}
	}
	return false
}

// ClientInfo describes the requesting page.
type ClientInfo struct {
	Host        string `json:"host"`
	Name        string `json:"name,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
}

// RequestEnvelope is an inbound provider request relayed from a page.
// ID is unique per logical request: a retransmission of the same
// request reuses the same ID, and the queue dedups on it.
type RequestEnvelope struct {
	ID              string          `json:"id"`
	Kind            Kind            `json:"kind"`
	Params          json.RawMessage `json:"params,omitempty"`
	Client          ClientInfo      `json:"client"`
	OriginContextID string          `json:"origin_context_id"`
}

// EnableParams selects the network a page wants authorization on.
// An empty Network means the wallet default.
type EnableParams struct {
	Network string `json:"network,omitempty"`
}

// DisableParams narrows which sessions a disable call revokes.
type DisableParams struct {
	Network    string   `json:"network,omitempty"`
	SessionIDs []string `json:"session_ids,omitempty"`
}

// Transaction is one decoded transaction from a signing batch.
// ID is the transaction's canonical identifier computed with the
// Group field cleared, so group commitments hash over it directly.
type Transaction struct {
	ID          string `json:"id"`
	GenesisHash string `json:"genesis_hash"`
	GenesisID   string `json:"genesis_id"`
	// Group is the declared group-commit identifier, empty for
	// singleton transactions.
	Group  string `json:"group,omitempty"`
	Signer string `json:"signer,omitempty"`
	Raw    []byte `json:"raw"`
}

// Network returns the genesis pair the transaction declares.
func (t Transaction) Network() Network {
	return Network{GenesisHash: t.GenesisHash, GenesisID: t.GenesisID}
}

// SignTransactionsParams carries the batch submitted for signing.
type SignTransactionsParams struct {
	Transactions []Transaction `json:"transactions"`
}

// SignMessageParams carries an arbitrary message and the address that
// must produce the signature.
type SignMessageParams struct {
	Network string `json:"network,omitempty"`
	Signer  string `json:"signer"`
	Message []byte `json:"message"`
}

// DecodeParams decodes raw params into the typed parameter struct for
// k. Discover takes no params; raw is ignored for it.
func DecodeParams(k Kind, raw json.RawMessage) (any, error) {
	switch k {
	case KindDiscover:
		return nil, nil
	case KindEnable:
		p := &EnableParams{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, p); err != nil {
				return nil, fmt.Errorf("decode enable params: %w", err)
			}
		}
		return p, nil
	case KindDisable:
		p := &DisableParams{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, p); err != nil {
				return nil, fmt.Errorf("decode disable params: %w", err)
			}
		}
		return p, nil
	case KindSignTransactions:
		p := &SignTransactionsParams{}
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("decode sign_transactions params: %w", err)
		}
		return p, nil
	case KindSignMessage:
		p := &SignMessageParams{}
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("decode sign_message params: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown request kind %q", k)
}

// Session is a durable authorization record linking a requesting host
// and a network to the accounts it may use. At most one active
// session exists per (Host, Network) pair.
type Session struct {
	ID                  string    `json:"id"`
	Host                string    `json:"host"`
	Network             Network   `json:"network"`
	AuthorizedAddresses []string  `json:"authorized_addresses"`
	CreatedAt           time.Time `json:"created_at"`
	UsedAt              time.Time `json:"used_at"`
}

// Authorizes reports whether the session covers address.
func (s *Session) Authorizes(address string) bool {
	for _, a := range s.AuthorizedAddresses {
		if a == address {
			return true
		}
	}
	return false
}

// QueuedEvent is a request parked for human consent. Its ID is
// queue-assigned and distinct from the request's own id.
type QueuedEvent struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Payload   RequestEnvelope `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// ResponseEnvelope is the single reply delivered to the page for a
// request, correlated by RequestID. Exactly one of Result / Error is
// set.
type ResponseEnvelope struct {
	RequestID string         `json:"request_id"`
	Result    any            `json:"result,omitempty"`
	Error     *ProtocolError `json:"error,omitempty"`
}

// DiscoverResult lists the networks currently enabled, each annotated
// with the methods it supports.
type DiscoverResult struct {
	Networks []Network `json:"networks"`
}

// EnableResult acknowledges an authorization session.
type EnableResult struct {
	SessionID   string   `json:"session_id"`
	GenesisHash string   `json:"genesis_hash"`
	GenesisID   string   `json:"genesis_id"`
	Addresses   []string `json:"addresses"`
}

// DisableResult reports the sessions a disable call removed. An empty
// list is a success, not an error.
type DisableResult struct {
	RemovedIDs []string `json:"removed_ids"`
}

// SignTransactionsResult carries one signed blob per input
// transaction, in input order.
type SignTransactionsResult struct {
	SignedTransactions [][]byte `json:"signed_transactions"`
}

// SignMessageResult carries the signature over the requested message.
type SignMessageResult struct {
	Signer    string `json:"signer"`
	Signature []byte `json:"signature"`
}

// Decision is the human verdict the UI submits for a queued event.
// An approval for Enable carries the authorized addresses; approvals
// for signing kinds authorize the dispatcher to invoke the signing
// service. A denial carries the protocol error to report, defaulting
// to MethodCanceled.
type Decision struct {
	Approve   bool           `json:"approve"`
	Addresses []string       `json:"addresses,omitempty"`
	Denial    *ProtocolError `json:"denial,omitempty"`
}
