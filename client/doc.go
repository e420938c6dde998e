// Package client provides a minimal RESP client used for the replication
// handshake, the bench command and tests.
//
//	conn, err := client.Dial(ctx, "localhost:6379")
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	reply, err := conn.Do(ctx, "SET", "key", "value")
//
// Pool keeps a bounded set of connections to one server, backed by
// go-commons-pool.
package client
