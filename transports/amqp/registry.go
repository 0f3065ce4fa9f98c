package amqp

import (
	"sync"

	"github.com/radarlink/dds-go/contracts"
)

// localEndpoint is one of this participant's writers or readers as the
// match registry sees it.
type localEndpoint struct {
	id          string
	kind        string
	topic       string
	typeName    string
	reliability contracts.Reliability
	notify      func(contracts.MatchStatus)
	matched     map[string]struct{} // remote endpoint ids
}

// remoteEndpoint is a peer learned from the discovery exchange.
type remoteEndpoint struct {
	id          string
	kind        string
	topic       string
	typeName    string
	reliability contracts.Reliability
}

// matchRegistry tracks local and remote endpoints of one participant and
// turns announcement traffic into match-count transitions. All
// notifications for one endpoint are emitted from the single discovery
// consumer goroutine, preserving per-endpoint event order.
type matchRegistry struct {
	mu      sync.Mutex
	locals  map[string]*localEndpoint
	remotes map[string]remoteEndpoint
}

func newMatchRegistry() *matchRegistry {
	return &matchRegistry{
		locals:  make(map[string]*localEndpoint),
		remotes: make(map[string]remoteEndpoint),
	}
}

// compatible applies the matching rule: opposite kinds, same topic, same
// type, and a reliability pairing where the writer side satisfies the
// reader side.
func (reg *matchRegistry) compatible(l *localEndpoint, rem remoteEndpoint) bool {
	if l.kind == rem.kind || l.topic != rem.topic || l.typeName != rem.typeName {
		return false
	}
	if l.kind == kindWriter {
		return l.reliability.CompatibleWith(rem.reliability)
	}
	return rem.reliability.CompatibleWith(l.reliability)
}

type notification struct {
	notify func(contracts.MatchStatus)
	status contracts.MatchStatus
}

func fire(ns []notification) {
	for _, n := range ns {
		if n.notify != nil {
			n.notify(n.status)
		}
	}
}

// addLocal registers a local endpoint and matches it against every known
// remote in one batch, so an endpoint coming up among N live peers sees a
// single 0 -> N transition.
func (reg *matchRegistry) addLocal(l *localEndpoint) {
	reg.mu.Lock()
	l.matched = make(map[string]struct{})
	reg.locals[l.id] = l
	for id, rem := range reg.remotes {
		if reg.compatible(l, rem) {
			l.matched[id] = struct{}{}
		}
	}
	var ns []notification
	if n := len(l.matched); n > 0 {
		ns = append(ns, notification{l.notify, contracts.MatchStatus{CurrentCount: n, CurrentCountChange: n}})
	}
	reg.mu.Unlock()
	fire(ns)
}

// removeLocal drops a local endpoint. Remote peers learn about it from
// the retire announcement, not from here.
func (reg *matchRegistry) removeLocal(id string) {
	reg.mu.Lock()
	delete(reg.locals, id)
	reg.mu.Unlock()
}

// observeAnnounce processes one announce message. It returns true when
// the remote endpoint was previously unknown, which the participant uses
// to trigger a convergence re-announce of its own endpoints.
func (reg *matchRegistry) observeAnnounce(a announcement) bool {
	reg.mu.Lock()
	if _, known := reg.remotes[a.EndpointID]; known {
		reg.mu.Unlock()
		return false
	}
	rem := remoteEndpoint{
		id:          a.EndpointID,
		kind:        a.Kind,
		topic:       a.Topic,
		typeName:    a.TypeName,
		reliability: a.reliability(),
	}
	reg.remotes[a.EndpointID] = rem

	var ns []notification
	for _, l := range reg.locals {
		if !reg.compatible(l, rem) {
			continue
		}
		l.matched[rem.id] = struct{}{}
		ns = append(ns, notification{l.notify, contracts.MatchStatus{
			CurrentCount:       len(l.matched),
			CurrentCountChange: 1,
		}})
	}
	reg.mu.Unlock()
	fire(ns)
	return true
}

// observeRetire processes one retire message, unmatching every local
// endpoint that had the remote as a peer.
func (reg *matchRegistry) observeRetire(a announcement) {
	reg.mu.Lock()
	if _, known := reg.remotes[a.EndpointID]; !known {
		reg.mu.Unlock()
		return
	}
	delete(reg.remotes, a.EndpointID)

	var ns []notification
	for _, l := range reg.locals {
		if _, ok := l.matched[a.EndpointID]; !ok {
			continue
		}
		delete(l.matched, a.EndpointID)
		ns = append(ns, notification{l.notify, contracts.MatchStatus{
			CurrentCount:       len(l.matched),
			CurrentCountChange: -1,
		}})
	}
	reg.mu.Unlock()
	fire(ns)
}

// isMatched reports whether the local endpoint is currently matched with
// the given remote endpoint.
func (reg *matchRegistry) isMatched(localID, remoteID string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	l, ok := reg.locals[localID]
	if !ok {
		return false
	}
	_, ok = l.matched[remoteID]
	return ok
}
