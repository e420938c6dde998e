// Package replication implements the replication role, the replica
// registry and the slave side of the replication handshake.
//
// A master keeps a State with a random 40 character replication id and
// registers replicas that announce themselves with REPLCONF:
//
//	state := replication.NewState(replication.Config{})
//	reg := replication.NewRegistration(state) // one per connection
//	reg.ListeningPort(6380)
//	reg.Capabilities([][]byte{[]byte("capa"), []byte("psync2")})
//
// A slave runs the handshake against its master:
//
//	state := replication.NewState(replication.Config{
//		ReplicaOf: &replication.MasterAddr{Host: "localhost", Port: 6379},
//	})
//	client := replication.NewClient(state, 6380)
//	if err := client.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// Only the bootstrap is implemented: after FULLRESYNC no snapshot or
// command stream is transferred, and a failed handshake is not retried.
package replication
