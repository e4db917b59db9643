// Package ws carries the front-end application's ports over WebSocket.
//
// A client connects to /ports once per application load. The handler:
//   - Resolves the client ID from the poolkeeper_client cookie, minting one
//     when absent
//   - Scopes preference storage to that client
//   - Runs the interop bridge startup, which sends InitData as the first frame
//   - Fires the page load event, which registers the offline worker
//   - Delivers every text frame to the bridge in arrival order
//
// Example Usage:
//
//	handler := ws.NewHandler(store, container, logger, metrics)
//	router.GET("/ports", handler.HandleConnection)
package ws
