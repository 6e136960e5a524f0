// Package metrics provides observability hooks for the content loader.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	engine := loader.NewEngine(store, installer, runtime, loader.WithRecorder(rec))
//
// PrometheusRecorder registers its collectors on a caller-provided registry;
// HTTPHandler serves that registry.
package metrics
