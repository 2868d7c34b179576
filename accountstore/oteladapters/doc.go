// Package oteladapters provides OpenTelemetry implementations of the accountstore observability
// interfaces, so the store, the cache and the mutator can be observed without writing adapters.
//
//	tracer := otel.Tracer("balance-simulator")
//	meter := otel.Meter("balance-simulator")
//
//	store, _ := sqlengine.NewStoreFromPGXPool(pool,
//		sqlengine.WithTracing(oteladapters.NewTracingCollector(tracer)),
//		sqlengine.WithMetrics(oteladapters.NewMetricsCollector(meter)),
//		sqlengine.WithContextualLogger(oteladapters.NewSlogBridgeLogger("balance-simulator")),
//	)
package oteladapters
