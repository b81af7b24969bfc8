// Package transport defines the datagram boundary the voice pipelines run on.
//
// A node opens Endpoints bound to ports and exchanges datagrams addressed by
// (identity, port). Two implementations are provided: Mesh, an in-process
// network with injectable loss and latency, and UDP, which maps identities
// to hosts through a Resolver.
package transport
