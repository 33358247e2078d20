// Package runtime wires storage, config, and facades into a single-node
// Lode instance. It exposes Open/Close, basic health checks, and handles
// for the stream store and the application's lease table.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	// Health
//	_ = rt.CheckHealth(context.Background())
//	// Append to the configured stream
//	view := rt.StreamView()
//	_ = view.Create(context.Background(), 4)
//	_, _, _ = view.Append(context.Background(), "device-001", []byte(`{"reading":1}`), time.Now().UnixMilli())
package runtime
