// Package client provides a Go SDK for the PTC coordinator's HTTP admin and
// message API, plus a WebSocket client for real-time event streaming.
//
// # Basic Usage
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	msg, err := c.SendMessage(ctx, client.SendMessageRequest{
//	    Type:      "email",
//	    Recipient: "worker-1",
//	    Payload:   json.RawMessage(`{"to":"user@example.com"}`),
//	})
//
// # WebSocket Events
//
//	err := c.ConnectWebSocket(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.CloseWebSocket()
//
//	for event := range c.Events() {
//	    fmt.Printf("Event: %s\n", event.Type)
//	}
//
// # Configuration
//
// The client supports functional options for configuration:
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithAPIKey("your-api-key"),
//	    client.WithTimeout(30 * time.Second),
//	)
package client
