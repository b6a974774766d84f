// Package client provides the Chronos Go SDK for talking to a chronosd
// server: recording ledger transactions, registering temporal events,
// coordinating agent sets, managing before/after proofs, and fetching
// integrity verifications and consolidation reports.
//
// Basic usage:
//
//	c, err := client.New("http://localhost:8460",
//	    client.WithBearerToken(token),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	txID, err := c.Record(ctx, client.RecordRequest{
//	    Type:      "memory_update",
//	    Operation: "consolidate",
//	    Agent:     "agent_analysis",
//	    Files:     []string{"notes/summary.md"},
//	})
//
// Read endpoints (verify, manifest, timeline, integrity, report) require no
// token. Write endpoints require one when the server has a signing secret
// configured.
package client
