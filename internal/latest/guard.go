// Package latest implements last-request-wins ordering for refreshes that
// may be re-issued before an earlier one settles.
package latest

// Ticket identifies one issued request.
type Ticket uint64

// Guard hands out monotonically increasing tickets. Only the most recently
// issued ticket is current; responses carrying older tickets are stale.
// A Guard is owned by a single event loop and is not safe for concurrent use.
type Guard struct {
	issued  Ticket
	settled Ticket
}

// Next issues a new ticket, superseding all earlier ones.
func (g *Guard) Next() Ticket {
	g.issued++
	return g.issued
}

// Current reports whether t is the latest issued ticket.
func (g *Guard) Current(t Ticket) bool {
	return t != 0 && t == g.issued
}

// Settle records that t completed and reports whether its response may be
// applied.
func (g *Guard) Settle(t Ticket) bool {
	if !g.Current(t) {
		return false
	}
	g.settled = t
	return true
}

// Pending reports whether the latest issued ticket has not settled yet.
func (g *Guard) Pending() bool {
	return g.issued != g.settled
}
