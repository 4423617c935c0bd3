// Package observability provides the metrics, structured logging, and
// distributed tracing used throughout this tool execution substrate.
//
// # Overview
//
// The observability package implements three pillars:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//
// # Architecture
//
// The package is designed to be:
//   - Low-overhead: Minimal performance impact on production systems
//   - Type-safe: Strongly-typed APIs reduce configuration errors
//   - Production-ready: Built-in redaction and reliability features
//   - Standards-based: Uses Prometheus, OpenTelemetry, and slog
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - Tool invocations by tool name and outcome
//   - Rate limiter bucket levels, wait time, and rejections by tier
//   - Cache hit/miss rate, entry count, and byte size by category
//   - Task queue depth, processing wait time, and outcome
//   - Outbound HTTP client requests and latency
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//
//	start := time.Now()
//	// ... dispatch tool ...
//	metrics.RecordToolInvocation("github.create_issue", "success", time.Since(start).Seconds())
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic request/session/user/tool ID correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	ctx := observability.AddRequestID(ctx, requestID)
//	ctx = observability.AddTool(ctx, "github.create_issue")
//
//	logger.Info(ctx, "dispatching tool invocation", "user_id", userID)
//
//	// Error logging with automatic redaction
//	logger.Error(ctx, "backend call failed",
//	    "error", err,
//	    "token", oauthToken, // automatically redacted
//	)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track one tool invocation
// across dispatch, the rate limiter, the outbound HTTP call, and the cache:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "corebridge",
//	    Endpoint:    "localhost:4317", // OTLP collector
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TraceToolInvocation(ctx, "github.create_issue")
//	defer span.End()
//
//	_, waitSpan := tracer.TraceRateLimitWait(ctx, "default")
//	// ... consume from the bucket ...
//	waitSpan.End()
//
//	_, httpSpan := tracer.TraceHTTPCoreRequest(ctx, "POST", url)
//	defer httpSpan.End()
//	if err != nil {
//	    tracer.RecordError(httpSpan, err)
//	}
//
// # Context Propagation
//
// All three components integrate with Go's context for correlation:
//
//	ctx = observability.AddRequestID(ctx, "req-123")
//	ctx = observability.AddSessionID(ctx, "sess-456")
//	ctx = observability.AddUserID(ctx, "user-789")
//	ctx = observability.AddTool(ctx, "github.create_issue")
//
//	logger.Info(ctx, "dispatching") // includes request_id, session_id, tool, etc.
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, generic)
//   - Passwords and secrets
//   - JWT tokens
//   - Bearer tokens
//   - Custom patterns via configuration
//
// Sensitive fields in maps are also redacted:
//   - password, passwd, pwd
//   - secret, api_key, apikey
//   - token, auth, authorization
//   - private_key, privatekey
//
// # Testing
//
// All components provide testable interfaces:
//   - Metrics can be verified using prometheus/testutil
//   - Logging can write to bytes.Buffer for assertions
//   - Tracing works with no-op exporters in tests
package observability
