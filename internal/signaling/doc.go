// Package signaling implements the WebSocket rendezvous surface of the relay:
// a volatile registry of logged-in peers and a dispatcher that forwards
// offer/answer/candidate/chat envelopes to the peer they name.
//
// Negotiation payloads are opaque to this package; the relay never interprets
// SDP or ICE contents, it only routes them.
package signaling
