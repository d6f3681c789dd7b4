// Package session tracks connected control clients and fans child output
// out to the attached ones.
//
// Every session owns an independent bounded outbound queue drained by its
// own writer goroutine, so one slow or dead client can never stall
// delivery to the others: a saturated queue gets the session disconnected
// instead. The registry also owns the console ring buffer, which lets it
// make the attach snapshot and the broadcast subscription atomic: a
// session replayed at attach time sees no gap and no duplicate between the
// replay and the first live line.
package session
