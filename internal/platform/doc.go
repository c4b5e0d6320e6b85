// Package platform provides REST clients for the remote IoT platform APIs
// consumed by notify-core: inventory queries, notification subscription CRUD,
// notification token issuance, alarm posting, and tenant information.
//
// Each tenant gets its own Client carrying that tenant's basic-auth
// credentials. The clients are deliberately thin: they translate Go calls
// into the platform's REST contract and classify failures into the sentinel
// errors in errors.go so callers can decide between retry, skip, and
// surface-to-caller.
//
// # Usage
//
//	client := platform.NewClient(cfg.Platform.BaseURL, creds)
//	devices, err := client.ListDevices(ctx, true)
//
// Thread Safety: a Client is safe for concurrent use; it holds no mutable
// state beyond the embedded http.Client.
package platform
