package observability

import "time"

// noOpMetricsClient is a no-op implementation of MetricsClient for testing
type noOpMetricsClient struct{}

// NewNoOpMetricsClient creates a new no-op metrics client that does nothing
func NewNoOpMetricsClient() MetricsClient {
	return &noOpMetricsClient{}
}

func (n *noOpMetricsClient) RecordCounter(name string, value float64, labels map[string]string)   {}
func (n *noOpMetricsClient) RecordGauge(name string, value float64, labels map[string]string)     {}
func (n *noOpMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {}

func (n *noOpMetricsClient) RecordCacheOperation(operation string, hit bool, duration time.Duration) {
}

func (n *noOpMetricsClient) RecordAPIOperation(method, endpoint string, statusCode int, duration time.Duration) {
}

func (n *noOpMetricsClient) RecordDatabaseOperation(operation, table string, err error, duration time.Duration) {
}

func (n *noOpMetricsClient) IncrementCounter(name string, value float64) {}

func (n *noOpMetricsClient) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
}

func (n *noOpMetricsClient) StartTimer(name string, labels map[string]string) func() {
	return func() {}
}

func (n *noOpMetricsClient) Close() error { return nil }
