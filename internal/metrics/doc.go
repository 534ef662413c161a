// Package metrics provides an observability framework for the polling,
// discovery, and build-dispatch engine.
//
// # Design Philosophy
//
// This package implements the Null Object pattern to enable metrics collection
// without requiring explicit nil checks throughout the codebase. By default,
// all components use NoopRecorder which implements the Recorder interface with
// empty methods.
//
// # Architecture
//
// The metrics system has three components:
//
//  1. Recorder interface - Defines all metrics operations
//  2. NoopRecorder - Default implementation that does nothing (zero overhead)
//  3. PrometheusRecorder - real implementation, selected by binaries built with -tags prometheus
//
// # Usage Pattern
//
// Components receive a Recorder through dependency injection:
//
//	type Engine struct {
//	    recorder metrics.Recorder
//	}
//
//	func NewEngine() *Engine {
//	    return &Engine{
//	        recorder: metrics.NoopRecorder{}, // Default: no metrics
//	    }
//	}
//
// # Activation
//
// To enable metrics, pass a real implementation in place of NoopRecorder
// (cmd/autobuildd does this when built with -tags prometheus):
//
//	recorder := metrics.NewPrometheusRecorder(registry)
//	eng := engine.New(settings, recorder, logger)
package metrics
