// Package metric provides Prometheus-based metrics collection and an HTTP server
// for monitoring ED247 contexts.
//
// The package offers a centralized metrics registry managing both the core
// protocol metrics (frames, datagrams, decode errors, missed frames) and scoped
// collectors such as the sample ring statistics.
//
// # Architecture
//
//  1. Core Metrics: protocol-level counters automatically registered (Metrics type)
//  2. Scoped collectors: Register/UnregisterScope, one scope per sample ring,
//     released when the owning context is closed
//  3. HTTP Server: metrics endpoint with a health check (Server type)
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        slog.Error("metrics server", "error", err)
//	    }
//	}()
//
//	core := registry.CoreMetrics()
//	core.RecordFrameSent("Channel0")
//	core.RecordDatagram("192.168.1.10:2589", 132)
//
// # Core Metrics
//
// All core metrics use the namespace "ed247":
//
//   - ed247_channel_frames_sent_total{channel="..."}
//   - ed247_channel_frames_received_total{channel="..."}
//   - ed247_channel_decode_errors_total{channel="..."}
//   - ed247_channel_missed_frames_total{channel="..."}
//   - ed247_socket_datagrams_received_total{socket="..."}
//   - ed247_socket_bytes_received_total{socket="..."}
//   - ed247_socket_send_errors_total{socket="..."}
//   - ed247_receiver_wait_duration_seconds{result="..."}
//   - ed247_bridge_samples_forwarded_total{stream="...",sink="..."}
//   - ed247_bridge_errors_total{type="..."}
//
// Vector metrics only appear in a scrape once a label value has been recorded.
//
// # Thread Safety
//
// Registration methods are protected by a mutex and metric recording is
// lock-free, so a single registry may be shared by several contexts.
package metric
