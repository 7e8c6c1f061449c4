package media

// Pending is the single-shot completion of one bind's metadata-ready signal.
// It is tagged with the session generation it was issued for; once the
// session moves on it is abandoned and its continuations never run.
//
// Pending is driven from the session's dispatcher and is not safe for
// concurrent use.
type Pending struct {
	gen       uint64
	done      bool
	abandoned bool
	meta      Metadata
	conts     []func(Metadata)
}

func newPending(gen uint64) *Pending {
	return &Pending{gen: gen}
}

func (p *Pending) Generation() uint64 { return p.gen }

// Ready reports whether metadata has arrived.
func (p *Pending) Ready() bool { return p.done }

// Abandoned reports whether the session moved on before metadata arrived.
func (p *Pending) Abandoned() bool { return p.abandoned }

func (p *Pending) Metadata() (Metadata, bool) {
	return p.meta, p.done
}

// Then runs fn with the metadata once it is available. If it already is, fn
// runs immediately. Continuations on an abandoned Pending are dropped.
func (p *Pending) Then(fn func(Metadata)) {
	switch {
	case p.abandoned:
		return
	case p.done:
		fn(p.meta)
	default:
		p.conts = append(p.conts, fn)
	}
}

func (p *Pending) resolve(m Metadata) {
	if p.done || p.abandoned {
		return
	}
	p.done = true
	p.meta = m
	conts := p.conts
	p.conts = nil
	for _, fn := range conts {
		fn(m)
	}
}

func (p *Pending) abandon() {
	if p.done {
		return
	}
	p.abandoned = true
	p.conts = nil
}
