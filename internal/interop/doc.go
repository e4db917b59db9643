// Package interop is the bridge between the front-end application's ports and
// persisted storage.
//
// On Init the bridge reads the remembered pool name, sends it to the
// application as
//
//	{"tag":"InitData","data":{"poolName":<value or null>,"version":"v1"}}
//
// subscribes to the application's outbound port, and registers the offline
// cache worker once the page has loaded. The only command with behavior is
//
//	{"tag":"StoreSessionPoolName","data":<value>}
//
// which persists <value> as JSON under the key "sessionPoolName". Messages
// without a tag are logged as errors; other tags are logged and ignored.
//
// Nothing in this package returns an error to its caller. Storage, encoding,
// transport and registration failures are logged and the bridge carries on.
package interop
