/*
Package client provides a Go client for the Hamster Provider API.

Client wraps a gRPC connection using the JSON codec from pkg/api and attaches
the caller's account to every call:

	c, err := client.NewClient("127.0.0.1:7070", "alice")
	if err != nil {
		return err
	}
	defer c.Close()

	id, err := c.RegisterResource(ctx, "12D3KooW...", "203.0.113.7", 4, 8)

Errors returned by the manager unwrap to the provider sentinel errors, so
callers test them the same way they would in process:

	if errors.Is(err, provider.ErrInstantiate) {
		// no resource has room for the DApp
	}
*/
package client
