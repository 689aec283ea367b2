package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic convention attribute keys for chronicle telemetry.
// Following OpenTelemetry naming conventions: namespace.attribute_name
const (
	// AttrEnvironment specifies the deployment environment (dev/staging/prod) for every metric.
	AttrEnvironment = attribute.Key("environment")
	// AttrStore names the data store implementation (sql, local, buffered).
	AttrStore = attribute.Key("store")
	// AttrOperation differentiates store operations (load_bbo_quotes, store_security_info, ...).
	AttrOperation = attribute.Key("operation")
	// AttrResult records the outcome of an operation (success, error).
	AttrResult = attribute.Key("result")
	// AttrKind labels market data by record kind (bbo_quote, time_and_sale, ...).
	AttrKind = attribute.Key("market_data.kind")
	// AttrSecurity captures the replayed security (SYMBOL.COUNTRY).
	AttrSecurity = attribute.Key("security")
	// AttrPoolName labels connection pool gauges (reader, writer, risk).
	AttrPoolName = attribute.Key("db_pool")
	// AttrDialect labels connection pool gauges by SQL dialect.
	AttrDialect = attribute.Key("db.dialect")
)

// Result values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metric names.
const (
	MetricStoreOperations = "chronicle.datastore.operations"
	MetricStoreDuration   = "chronicle.datastore.operation.duration"
	MetricReplayPublished = "chronicle.replay.published"
	MetricReplayFailed    = "chronicle.replay.unit.failures"
	MetricReplayLag       = "chronicle.replay.publish.lag"
)

// OperationAttributes returns attributes for data store operation metrics.
func OperationAttributes(environment, store, operation, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrStore.String(store),
		AttrOperation.String(operation),
		AttrResult.String(result),
	}
}

// ReplayAttributes returns attributes for replay metrics.
func ReplayAttributes(environment, kind, security string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrKind.String(kind),
	}
	if security != "" {
		attrs = append(attrs, AttrSecurity.String(security))
	}
	return attrs
}

// PoolAttributes returns attributes for connection pool gauges.
func PoolAttributes(environment, poolName, dialect string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrPoolName.String(poolName),
		AttrDialect.String(dialect),
	}
}

// ResultOf maps an error to its result attribute value.
func ResultOf(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
