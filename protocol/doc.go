// Package protocol implements the Redis Serialization Protocol (RESP)
// value model and codec used by the server, the replication handshake
// and the client.
//
// Two entry points share one grammar:
//
//	n, v, err := protocol.Decode(buf)     // one value from a byte slice
//	b := protocol.Encode(v)               // self-delimiting wire bytes
//
//	reader := protocol.NewReader(conn)    // streaming, for sockets
//	for {
//		value, err := reader.ReadNext()
//		if err != nil {
//			break
//		}
//		// Process value
//	}
//
// Supported value types:
//   - Arrays
//   - Bulk Strings (binary safe)
//   - Simple Strings
//   - Null, encoded only as the RESP3 marker "_\r\n"
//   - Errors and Integers, used for replies
//
// Malformed input yields a *FormatError. RESP offers no point to
// resynchronize a stream, so callers treat it as fatal for the connection.
package protocol
