// Package dispatcher is the wallet core's request broker. It receives
// provider requests relayed from pages, runs the ordered validation
// pipeline, answers immediately when existing authorization state
// allows it, and otherwise parks the request in the durable event
// queue for human consent. The UI resolves queued events through
// CompleteQueuedEvent; exactly one reply reaches the originating page
// per request id.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Aegis-Wallet/aegis/pkg/accounts"
	"github.com/Aegis-Wallet/aegis/pkg/contracts"
	"github.com/Aegis-Wallet/aegis/pkg/netcap"
	"github.com/Aegis-Wallet/aegis/pkg/observability"
	"github.com/Aegis-Wallet/aegis/pkg/relay"
	"github.com/Aegis-Wallet/aegis/pkg/signing"
	"github.com/Aegis-Wallet/aegis/pkg/store"
	"github.com/Aegis-Wallet/aegis/pkg/txgroup"
)

// Deps wires the dispatcher's collaborators.
type Deps struct {
	Sessions store.SessionStore
	Queue    store.EventQueue
	Hub      *relay.Hub
	Table    *netcap.Table
	Accounts accounts.Repository
	Signer   signing.Signer
	Limiter  *relay.Limiter // optional
	Obs      *observability.Provider
	Logger   *slog.Logger
}

// Dispatcher composes the session store, event queue, capability
// table, group validator, and response channel.
type Dispatcher struct {
	sessions store.SessionStore
	queue    store.EventQueue
	hub      *relay.Hub
	table    *netcap.Table
	accounts accounts.Repository
	signer   signing.Signer
	limiter  *relay.Limiter
	obs      *observability.Provider
	clock    func() time.Time
	logger   *slog.Logger

	// completeMu serializes completions so the load/reply/remove
	// sequence is atomic; a concurrent duplicate completion observes
	// the removal and no-ops instead of replying a second time.
	completeMu sync.Mutex
}

// New builds a dispatcher. Obs and Logger may be nil.
func New(deps Deps) (*Dispatcher, error) {
	if deps.Sessions == nil || deps.Queue == nil || deps.Hub == nil || deps.Table == nil {
		return nil, fmt.Errorf("dispatcher requires sessions, queue, hub, and table")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	obs := deps.Obs
	if obs == nil {
		var err error
		if obs, err = observability.New(context.Background(), nil); err != nil {
			return nil, err
		}
	}
	return &Dispatcher{
		sessions: deps.Sessions,
		queue:    deps.Queue,
		hub:      deps.Hub,
		table:    deps.Table,
		accounts: deps.Accounts,
		signer:   deps.Signer,
		limiter:  deps.Limiter,
		obs:      obs,
		clock:    time.Now,
		logger:   logger.With("component", "dispatcher"),
	}, nil
}

// WithClock overrides the clock for deterministic testing.
func (d *Dispatcher) WithClock(clock func() time.Time) *Dispatcher {
	d.clock = clock
	return d
}

// withRetry runs a storage operation, retrying exactly once on
// failure before escalating. The contract allows no other automatic
// retry.
func (d *Dispatcher) withRetry(op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	d.logger.Warn("storage operation failed, retrying once", "error", err)
	return op()
}

// HandleRequest processes one inbound request envelope. Exactly one
// reply eventually reaches the origin: either synchronously from this
// call, or later via CompleteQueuedEvent. Requests from origin
// contexts with no live reply destination are dropped; there is
// nowhere to surface an error.
func (d *Dispatcher) HandleRequest(ctx context.Context, env contracts.RequestEnvelope) {
	start := d.clock()
	ctx, span := d.obs.StartRequest(ctx, string(env.Kind))
	defer span.End()

	if !d.hub.IsLive(env.OriginContextID) {
		d.logger.Warn("dropping request from dead origin context",
			"request_id", env.ID, "origin_context_id", env.OriginContextID)
		return
	}
	if !d.limiter.Allow(env.Client.Host) {
		d.logger.Warn("rate limited", "host", env.Client.Host, "request_id", env.ID)
		d.reply(env, nil, contracts.ErrInternal())
		return
	}

	result, perr, replyNow := d.process(ctx, env)
	if replyNow {
		d.reply(env, result, perr)
	}

	errCode := ""
	if perr != nil {
		errCode = perr.Code
	}
	d.obs.RecordRequest(ctx, string(env.Kind), d.clock().Sub(start), errCode)
}

func (d *Dispatcher) reply(env contracts.RequestEnvelope, result any, perr *contracts.ProtocolError) {
	resp := contracts.ResponseEnvelope{RequestID: env.ID}
	if perr != nil {
		resp.Error = perr
	} else {
		resp.Result = result
	}
	d.hub.Reply(env.OriginContextID, resp)
}

// process runs the validation pipeline. replyNow=false means the
// request was parked (or deduplicated) and no reply may be sent yet.
func (d *Dispatcher) process(ctx context.Context, env contracts.RequestEnvelope) (result any, perr *contracts.ProtocolError, replyNow bool) {
	params, perr := d.checkShape(env)
	if perr != nil {
		return nil, perr, true
	}

	switch env.Kind {
	case contracts.KindDiscover:
		return d.processDiscover(ctx)
	case contracts.KindEnable:
		return d.processEnable(ctx, env, params.(*contracts.EnableParams))
	case contracts.KindDisable:
		return d.processDisable(ctx, env, params.(*contracts.DisableParams))
	case contracts.KindSignTransactions:
		return d.processSignTransactions(ctx, env, params.(*contracts.SignTransactionsParams))
	case contracts.KindSignMessage:
		return d.processSignMessage(ctx, env, params.(*contracts.SignMessageParams))
	}
	// Unreachable: checkShape rejects unknown kinds.
	return nil, contracts.ErrInvalidInput(fmt.Sprintf("unknown method %q", env.Kind)), true
}

// checkShape validates required params against the method's schema
// and decodes them into their typed form.
func (d *Dispatcher) checkShape(env contracts.RequestEnvelope) (any, *contracts.ProtocolError) {
	if !env.Kind.Valid() {
		return nil, contracts.ErrInvalidInput(fmt.Sprintf("unknown method %q", env.Kind))
	}

	shape := map[contracts.Kind]struct {
		schema   *jsonschema.Schema
		required bool
	}{
		contracts.KindEnable:           {enableSchema, false},
		contracts.KindDisable:          {disableSchema, false},
		contracts.KindSignTransactions: {signTransactionsSchema, true},
		contracts.KindSignMessage:      {signMessageSchema, true},
	}[env.Kind]

	if shape.schema != nil {
		if len(env.Params) == 0 {
			if shape.required {
				return nil, contracts.ErrInvalidInput("required params are missing")
			}
		} else {
			var v any
			if err := json.Unmarshal(env.Params, &v); err != nil {
				return nil, contracts.ErrInvalidInput("params are not valid JSON")
			}
			if err := shape.schema.Validate(v); err != nil {
				return nil, contracts.ErrInvalidInput(err.Error())
			}
		}
	}

	params, err := contracts.DecodeParams(env.Kind, env.Params)
	if err != nil {
		return nil, contracts.ErrInvalidInput(err.Error())
	}
	return params, nil
}

// resolveNetwork resolves ref through the capability table, falling
// back to the wallet default for an empty ref. A nil network with a
// nil error means the reference is unsupported.
func (d *Dispatcher) resolveNetwork(ctx context.Context, ref string) (*contracts.Network, error) {
	var network *contracts.Network
	err := d.withRetry(func() error {
		var e error
		if ref == "" {
			network, e = d.table.ResolveDefault(ctx)
		} else {
			network, e = d.table.Resolve(ctx, ref)
		}
		return e
	})
	return network, err
}

func (d *Dispatcher) processDiscover(ctx context.Context) (any, *contracts.ProtocolError, bool) {
	var networks []contracts.Network
	err := d.withRetry(func() error {
		var e error
		networks, e = d.table.SupportedNetworks(ctx)
		return e
	})
	if err != nil {
		d.logger.Error("discover failed", "error", err)
		return nil, contracts.ErrInternal(), true
	}
	return &contracts.DiscoverResult{Networks: networks}, nil, true
}

func (d *Dispatcher) processEnable(ctx context.Context, env contracts.RequestEnvelope, p *contracts.EnableParams) (any, *contracts.ProtocolError, bool) {
	network, err := d.resolveNetwork(ctx, p.Network)
	if err != nil {
		d.logger.Error("network resolution failed", "request_id", env.ID, "error", err)
		return nil, contracts.ErrInternal(), true
	}
	if network == nil {
		ref := p.Network
		if ref == "" {
			ref = "default"
		}
		return nil, contracts.ErrNetworkNotSupported([]string{ref}), true
	}
	if !network.Supports(contracts.KindEnable) {
		return nil, contracts.ErrNetworkNotSupported([]string{network.GenesisID}), true
	}

	// Session short-circuit: an existing authorization on a still
	// supported network answers without consent.
	var sess *contracts.Session
	if err := d.withRetry(func() error {
		var e error
		sess, e = d.sessions.FindByHostAndNetwork(ctx, env.Client.Host, *network)
		return e
	}); err != nil {
		d.logger.Error("session lookup failed", "request_id", env.ID, "error", err)
		return nil, contracts.ErrInternal(), true
	}

	if sess != nil {
		// Settings may have changed between suspension points; a
		// session on a dropped network must be deleted, not reused.
		var supported bool
		if err := d.withRetry(func() error {
			var e error
			supported, e = d.table.IsSupported(ctx, sess.Network.GenesisHash)
			return e
		}); err != nil {
			d.logger.Error("capability check failed", "request_id", env.ID, "error", err)
			return nil, contracts.ErrInternal(), true
		}
		if !supported {
			if err := d.withRetry(func() error {
				_, e := d.sessions.RemoveByIDs(ctx, []string{sess.ID})
				return e
			}); err != nil {
				d.logger.Error("stale session removal failed", "request_id", env.ID, "error", err)
				return nil, contracts.ErrInternal(), true
			}
			return d.enqueue(ctx, env)
		}

		sess.UsedAt = d.clock()
		var stored *contracts.Session
		if err := d.withRetry(func() error {
			var e error
			stored, e = d.sessions.Upsert(ctx, sess)
			return e
		}); err != nil {
			d.logger.Error("session refresh failed", "request_id", env.ID, "error", err)
			return nil, contracts.ErrInternal(), true
		}
		return &contracts.EnableResult{
			SessionID:   stored.ID,
			GenesisHash: stored.Network.GenesisHash,
			GenesisID:   stored.Network.GenesisID,
			Addresses:   stored.AuthorizedAddresses,
		}, nil, true
	}

	return d.enqueue(ctx, env)
}

func (d *Dispatcher) processDisable(ctx context.Context, env contracts.RequestEnvelope, p *contracts.DisableParams) (any, *contracts.ProtocolError, bool) {
	network, err := d.resolveNetwork(ctx, p.Network)
	if err != nil {
		d.logger.Error("network resolution failed", "request_id", env.ID, "error", err)
		return nil, contracts.ErrInternal(), true
	}
	if p.Network != "" && network == nil {
		return nil, contracts.ErrNetworkNotSupported([]string{p.Network}), true
	}

	removed := []string{}
	if network != nil {
		var all []*contracts.Session
		if err := d.withRetry(func() error {
			var e error
			all, e = d.sessions.FindAllByHost(ctx, env.Client.Host)
			return e
		}); err != nil {
			d.logger.Error("session lookup failed", "request_id", env.ID, "error", err)
			return nil, contracts.ErrInternal(), true
		}

		wanted := map[string]bool{}
		for _, id := range p.SessionIDs {
			wanted[id] = true
		}
		var ids []string
		for _, s := range all {
			if s.Network.Key() != network.Key() {
				continue
			}
			if len(wanted) > 0 && !wanted[s.ID] {
				continue
			}
			ids = append(ids, s.ID)
		}
		if len(ids) > 0 {
			if err := d.withRetry(func() error {
				var e error
				removed, e = d.sessions.RemoveByIDs(ctx, ids)
				return e
			}); err != nil {
				d.logger.Error("session removal failed", "request_id", env.ID, "error", err)
				return nil, contracts.ErrInternal(), true
			}
		}
	}
	// Absence of sessions is not an error: disable always succeeds.
	return &contracts.DisableResult{RemovedIDs: removed}, nil, true
}

func (d *Dispatcher) processSignTransactions(ctx context.Context, env contracts.RequestEnvelope, p *contracts.SignTransactionsParams) (any, *contracts.ProtocolError, bool) {
	// Group-commit integrity comes before everything else: a
	// malformed batch is rejected without inspecting its members.
	if _, err := txgroup.Validate(p.Transactions); err != nil {
		var perr *contracts.ProtocolError
		if errors.As(err, &perr) {
			return nil, perr, true
		}
		return nil, contracts.ErrInvalidGroupID(err.Error()), true
	}

	// Every declared network must be supported; offenders are
	// reported together, deduplicated.
	var unsupported []string
	seen := map[string]bool{}
	resolved := map[string]contracts.Network{}
	for _, tx := range p.Transactions {
		ref := tx.GenesisID
		if ref == "" {
			ref = tx.GenesisHash
		}
		if seen[ref] {
			continue
		}
		seen[ref] = true

		network, err := d.resolveNetwork(ctx, ref)
		if err != nil {
			d.logger.Error("network resolution failed", "request_id", env.ID, "error", err)
			return nil, contracts.ErrInternal(), true
		}
		if network == nil || network.GenesisHash != tx.GenesisHash || network.GenesisID != tx.GenesisID ||
			!network.Supports(contracts.KindSignTransactions) {
			unsupported = append(unsupported, ref)
			continue
		}
		resolved[ref] = *network
	}
	if len(unsupported) > 0 {
		return nil, contracts.ErrNetworkNotSupported(unsupported), true
	}

	// Authorization: each transaction's network needs an active
	// session for this host, and a named signer must be authorized
	// and able to sign.
	sessions := map[string]*contracts.Session{}
	for _, tx := range p.Transactions {
		ref := tx.GenesisID
		if ref == "" {
			ref = tx.GenesisHash
		}
		network := resolved[ref]
		sess, ok := sessions[network.Key()]
		if !ok {
			if err := d.withRetry(func() error {
				var e error
				sess, e = d.sessions.FindByHostAndNetwork(ctx, env.Client.Host, network)
				return e
			}); err != nil {
				d.logger.Error("session lookup failed", "request_id", env.ID, "error", err)
				return nil, contracts.ErrInternal(), true
			}
			sessions[network.Key()] = sess
		}
		if sess == nil {
			return nil, contracts.ErrUnauthorizedSigner(tx.Signer), true
		}
		if tx.Signer != "" {
			if perr := d.checkSigner(ctx, sess, tx.Signer); perr != nil {
				return nil, perr, true
			}
		}
	}

	return d.enqueue(ctx, env)
}

func (d *Dispatcher) processSignMessage(ctx context.Context, env contracts.RequestEnvelope, p *contracts.SignMessageParams) (any, *contracts.ProtocolError, bool) {
	network, err := d.resolveNetwork(ctx, p.Network)
	if err != nil {
		d.logger.Error("network resolution failed", "request_id", env.ID, "error", err)
		return nil, contracts.ErrInternal(), true
	}
	if network == nil {
		ref := p.Network
		if ref == "" {
			ref = "default"
		}
		return nil, contracts.ErrNetworkNotSupported([]string{ref}), true
	}
	if !network.Supports(contracts.KindSignMessage) {
		return nil, contracts.ErrNetworkNotSupported([]string{network.GenesisID}), true
	}

	var sess *contracts.Session
	if err := d.withRetry(func() error {
		var e error
		sess, e = d.sessions.FindByHostAndNetwork(ctx, env.Client.Host, *network)
		return e
	}); err != nil {
		d.logger.Error("session lookup failed", "request_id", env.ID, "error", err)
		return nil, contracts.ErrInternal(), true
	}
	if sess == nil {
		return nil, contracts.ErrUnauthorizedSigner(p.Signer), true
	}
	if perr := d.checkSigner(ctx, sess, p.Signer); perr != nil {
		return nil, perr, true
	}

	return d.enqueue(ctx, env)
}

// checkSigner enforces that address is in the session's authorized
// set and is not watch-only.
func (d *Dispatcher) checkSigner(ctx context.Context, sess *contracts.Session, address string) *contracts.ProtocolError {
	if !sess.Authorizes(address) {
		return contracts.ErrUnauthorizedSigner(address)
	}
	if d.accounts != nil {
		watchOnly, err := d.accounts.IsWatchOnly(ctx, address)
		if err != nil {
			d.logger.Error("account lookup failed", "address", address, "error", err)
			return contracts.ErrInternal()
		}
		if watchOnly {
			return contracts.ErrUnauthorizedSigner(address)
		}
	}
	return nil
}

// enqueue parks the request for human consent. A duplicate arrival of
// the same logical request id writes nothing and sends nothing: the
// first copy owns the eventual reply.
func (d *Dispatcher) enqueue(ctx context.Context, env contracts.RequestEnvelope) (any, *contracts.ProtocolError, bool) {
	ev := &contracts.QueuedEvent{
		ID:        uuid.New().String(),
		Kind:      env.Kind,
		Payload:   env,
		CreatedAt: d.clock(),
	}
	var enqueued bool
	if err := d.withRetry(func() error {
		var e error
		enqueued, e = d.queue.Enqueue(ctx, ev)
		return e
	}); err != nil {
		d.logger.Error("enqueue failed", "request_id", env.ID, "error", err)
		return nil, contracts.ErrInternal(), true
	}
	if !enqueued {
		d.logger.Info("discarded duplicate request", "request_id", env.ID)
	}
	return nil, nil, false
}

// ListPending returns the queued events of one kind awaiting consent,
// in arrival order. The UI polls or subscribes through this.
func (d *Dispatcher) ListPending(ctx context.Context, kind contracts.Kind) ([]*contracts.QueuedEvent, error) {
	var events []*contracts.QueuedEvent
	err := d.withRetry(func() error {
		var e error
		events, e = d.queue.ListByKind(ctx, kind)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("list pending %s events: %w", kind, err)
	}
	return events, nil
}

// CompleteQueuedEvent turns a human decision into the final reply for
// a queued request, then removes the queue entry. Completing an
// already-removed queue id is a no-op, which makes the operation
// idempotent.
func (d *Dispatcher) CompleteQueuedEvent(ctx context.Context, queueID string, decision contracts.Decision) error {
	d.completeMu.Lock()
	defer d.completeMu.Unlock()

	var ev *contracts.QueuedEvent
	if err := d.withRetry(func() error {
		var e error
		ev, e = d.queue.GetByID(ctx, queueID)
		return e
	}); err != nil {
		return fmt.Errorf("load queued event %s: %w", queueID, err)
	}
	if ev == nil {
		return nil
	}
	env := ev.Payload

	var result any
	var perr *contracts.ProtocolError
	if !decision.Approve {
		perr = decision.Denial
		if perr == nil {
			perr = contracts.ErrMethodCanceled()
		}
	} else {
		switch ev.Kind {
		case contracts.KindEnable:
			result, perr = d.completeEnable(ctx, env, decision)
		case contracts.KindSignTransactions:
			result, perr = d.completeSignTransactions(ctx, env, decision)
		case contracts.KindSignMessage:
			result, perr = d.completeSignMessage(ctx, env)
		case contracts.KindDiscover, contracts.KindDisable:
			// These kinds are answered inline and never queued; an
			// approval mutates no session state.
			result, perr = nil, contracts.ErrInternal()
			d.logger.Error("completion for kind that is never queued", "queue_id", queueID, "kind", ev.Kind)
		}
	}
	d.reply(env, result, perr)

	if err := d.withRetry(func() error {
		return d.queue.RemoveByID(ctx, queueID)
	}); err != nil {
		// The reply is out; leaving the entry behind would allow a
		// second reply. Surface loudly to the UI caller.
		return fmt.Errorf("remove completed event %s: %w", queueID, err)
	}
	return nil
}

func (d *Dispatcher) completeEnable(ctx context.Context, env contracts.RequestEnvelope, decision contracts.Decision) (any, *contracts.ProtocolError) {
	if len(decision.Addresses) == 0 {
		d.logger.Error("enable approval carried no addresses", "request_id", env.ID)
		return nil, contracts.ErrInternal()
	}

	params, perr := d.checkShape(env)
	if perr != nil {
		return nil, perr
	}
	network, err := d.resolveNetwork(ctx, params.(*contracts.EnableParams).Network)
	if err != nil {
		d.logger.Error("network resolution failed", "request_id", env.ID, "error", err)
		return nil, contracts.ErrInternal()
	}
	if network == nil {
		// Settings changed while the request sat in the queue.
		ref := params.(*contracts.EnableParams).Network
		if ref == "" {
			ref = "default"
		}
		return nil, contracts.ErrNetworkNotSupported([]string{ref})
	}
	if !network.Supports(contracts.KindEnable) {
		return nil, contracts.ErrNetworkNotSupported([]string{network.GenesisID})
	}

	now := d.clock()
	var stored *contracts.Session
	if err := d.withRetry(func() error {
		var e error
		stored, e = d.sessions.Upsert(ctx, &contracts.Session{
			Host:                env.Client.Host,
			Network:             *network,
			AuthorizedAddresses: decision.Addresses,
			CreatedAt:           now,
			UsedAt:              now,
		})
		return e
	}); err != nil {
		d.logger.Error("session upsert failed", "request_id", env.ID, "error", err)
		return nil, contracts.ErrInternal()
	}

	return &contracts.EnableResult{
		SessionID:   stored.ID,
		GenesisHash: stored.Network.GenesisHash,
		GenesisID:   stored.Network.GenesisID,
		Addresses:   stored.AuthorizedAddresses,
	}, nil
}

func (d *Dispatcher) completeSignTransactions(ctx context.Context, env contracts.RequestEnvelope, decision contracts.Decision) (any, *contracts.ProtocolError) {
	if d.signer == nil {
		d.logger.Error("no signing service configured", "request_id", env.ID)
		return nil, contracts.ErrInternal()
	}
	params, perr := d.checkShape(env)
	if perr != nil {
		return nil, perr
	}
	p := params.(*contracts.SignTransactionsParams)

	fallback := ""
	if len(decision.Addresses) > 0 {
		fallback = decision.Addresses[0]
	}

	signed := make([][]byte, len(p.Transactions))
	for i, tx := range p.Transactions {
		address := tx.Signer
		if address == "" {
			address = fallback
		}
		if address == "" {
			return nil, contracts.ErrUnauthorizedSigner("")
		}
		blob, err := d.signer.SignTransaction(ctx, address, tx.Raw)
		if err != nil {
			return nil, d.mapSigningError(env.ID, address, err)
		}
		signed[i] = blob
	}
	return &contracts.SignTransactionsResult{SignedTransactions: signed}, nil
}

func (d *Dispatcher) completeSignMessage(ctx context.Context, env contracts.RequestEnvelope) (any, *contracts.ProtocolError) {
	if d.signer == nil {
		d.logger.Error("no signing service configured", "request_id", env.ID)
		return nil, contracts.ErrInternal()
	}
	params, perr := d.checkShape(env)
	if perr != nil {
		return nil, perr
	}
	p := params.(*contracts.SignMessageParams)

	sig, err := d.signer.SignMessage(ctx, p.Signer, p.Message)
	if err != nil {
		return nil, d.mapSigningError(env.ID, p.Signer, err)
	}
	return &contracts.SignMessageResult{Signer: p.Signer, Signature: sig}, nil
}

func (d *Dispatcher) mapSigningError(requestID, address string, err error) *contracts.ProtocolError {
	var serr *signing.Error
	if errors.As(err, &serr) && serr.Code == signing.ErrCodeUnknownAddress {
		return contracts.ErrUnauthorizedSigner(address)
	}
	d.logger.Error("signing failed", "request_id", requestID, "address", address, "error", err)
	return contracts.ErrInternal()
}
