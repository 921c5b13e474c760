// Package netiso serves the ps3netsrv protocol on one client connection.
//
// # Architecture Overview
//
//   - Wire Layer (wire/): opcodes, the 16-byte header, big-endian codec,
//     buffer pool and the error taxonomy
//   - Handler Layer (handlers/): one function per command plus the Session
//     holding the connection state
//   - Dispatch Layer (dispatch.go): opcode to handler table
//   - Connection Layer (conn.go): request loop, timeouts, panic recovery,
//     metrics and logging
//
// Accepting connections, limits and address filtering live in
// pkg/adapter/netiso.
//
// # Request Flow
//
// The client sends a header, optionally followed by a path or write
// payload, and waits for the response before sending the next request.
// Conn therefore processes one request at a time:
//
//  1. read the 16-byte header (EOF here is a clean disconnect)
//  2. look up the command; unknown opcodes close the connection
//  3. run the handler, which reads its own payload from the stream
//  4. write the whole response with a single Write
//  5. record metrics; close the connection if the error was fatal
//
// The Session is closed, releasing every open handle, on all exit paths.
package netiso
