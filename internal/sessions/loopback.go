package sessions

// -------------------------------------------------------------------------
// Loopback Connection Resolution
// -------------------------------------------------------------------------

// ResolveLoopback classifies the snapshot's established connections into
// directed loopback connections.
//
// A pair qualifies when both endpoints are loopback addresses and exactly
// one endpoint's port appears in the listening-port set; the listening
// side is the server. Pairs where both or neither endpoint is listening
// are discarded as ambiguous.
func ResolveLoopback(snap SocketSnapshot) []LoopbackConnection {
	conns := make([]LoopbackConnection, 0, len(snap.Established))

	for _, pair := range snap.Established {
		if !pair.Local.Addr.IsLoopback() || !pair.Peer.Addr.IsLoopback() {
			continue
		}

		_, localListening := snap.ListeningPorts[pair.Local.Port]
		_, peerListening := snap.ListeningPorts[pair.Peer.Port]

		switch {
		case localListening == peerListening:
			// Ambiguous: direction cannot be inferred.
			continue
		case peerListening:
			conns = append(conns, LoopbackConnection{Client: pair.Local, Server: pair.Peer})
		default:
			conns = append(conns, LoopbackConnection{Client: pair.Peer, Server: pair.Local})
		}
	}

	return conns
}
