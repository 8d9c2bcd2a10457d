// Package mcp implements the core of the Model Context Protocol: a
// bidirectional JSON-RPC 2.0 messaging framework connecting a host
// application to tool-providing servers over pluggable transports.
//
// The package is organized around three subsystems: wire types and
// codecs (wire.go, errors.go, readbuffer.go), transport lifecycle and
// implementations (transport.go, stdio.go, sse.go, streamable_http.go),
// and the protocol engine plus server-side feature registry (protocol.go,
// registry.go, server.go, client.go).
package mcp
