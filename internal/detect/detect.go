// Package detect annotates a finished redirect chain. It never changes the
// chain itself.
package detect

import (
	"net/url"

	"github.com/selimozcann/WhereGoes/internal/model"
	"github.com/selimozcann/WhereGoes/internal/trace"
	"github.com/selimozcann/WhereGoes/internal/util"
)

const (
	TypeCrossDomain    = "CROSS_DOMAIN"
	TypeHTTPSDowngrade = "HTTPS_DOWNGRADE"
	TypeInternalHost   = "INTERNAL_HOST"
	TypeCeiling        = "CEILING_REACHED"
	TypeNoLocation     = "REDIRECT_WITHOUT_LOCATION"
)

// InternalHost checks whether the URL points to an internal host.
func InternalHost(u *url.URL, hop int) *model.Note {
	if util.IsInternalHost(u.Hostname()) {
		return &model.Note{Type: TypeInternalHost, Severity: "high", AtHop: hop, Detail: u.Host}
	}
	return nil
}

// HTTPSDowngrade reports if the scheme changed from https to http.
func HTTPSDowngrade(prev, next *url.URL, hop int) *model.Note {
	if prev.Scheme == "https" && next.Scheme == "http" {
		return &model.Note{Type: TypeHTTPSDowngrade, Severity: "medium", AtHop: hop, Detail: prev.String() + " -> " + next.String()}
	}
	return nil
}

// CrossDomain reports a hop that lands on another registrable domain.
func CrossDomain(prev, next *url.URL, hop int) *model.Note {
	from, to := util.ETLDPlusOne(prev), util.ETLDPlusOne(next)
	if from != to {
		return &model.Note{Type: TypeCrossDomain, Severity: "info", AtHop: hop, Detail: from + " -> " + to}
	}
	return nil
}

// Annotate inspects every hop of res and returns the notes found, in hop
// order.
func Annotate(res model.Result) []model.Note {
	var notes []model.Note
	add := func(n *model.Note) {
		if n != nil {
			notes = append(notes, *n)
		}
	}

	var prev *url.URL
	for i, hop := range res.Chain {
		u, err := url.Parse(hop.URL)
		if err != nil {
			continue
		}
		add(InternalHost(u, i))
		if prev != nil {
			add(HTTPSDowngrade(prev, u, i))
			add(CrossDomain(prev, u, i))
		}
		prev = u
	}

	last := len(res.Chain) - 1
	switch trace.Reason(res.Reason) {
	case trace.ReasonCeiling:
		notes = append(notes, model.Note{Type: TypeCeiling, Severity: "info", AtHop: last, Detail: "redirect limit reached"})
	case trace.ReasonNoLocation:
		notes = append(notes, model.Note{Type: TypeNoLocation, Severity: "low", AtHop: last, Detail: "3xx response without Location header"})
	}
	return notes
}
