package conversation

import (
	"strings"

	"cortex/internal/events"
)

// Opener shows an external URL to the user.
type Opener interface {
	Open(url string) error
}

// CitationRouter sends URL citations outside and everything else to the
// knowledge inspector.
type CitationRouter struct {
	opener Opener
	bus    *events.Bus[events.CitationLookup]
}

func NewCitationRouter(opener Opener, bus *events.Bus[events.CitationLookup]) *CitationRouter {
	return &CitationRouter{opener: opener, bus: bus}
}

func (r *CitationRouter) Route(citation string) error {
	if strings.HasPrefix(citation, "http") {
		if r.opener == nil {
			return nil
		}
		return r.opener.Open(citation)
	}
	if r.bus != nil {
		r.bus.Publish(events.CitationLookup{Title: citation})
	}
	return nil
}
