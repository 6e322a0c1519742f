package metrics

import (
	"strconv"
	"time"
)

// CheckoutCreated records a new checkout session of the given kind ("payment" or "mint").
func CheckoutCreated(kind string) {
	if !Enabled() {
		return
	}
	checkoutCreatedTotal.WithLabelValues(kind).Inc()
}

// CheckoutResult records a checkout reaching a final state.
func CheckoutResult(kind, result string) {
	if !Enabled() {
		return
	}
	checkoutResultTotal.WithLabelValues(kind, result).Inc()
}

// Poll records one find and validate attempt.
func Poll(outcome string) {
	if !Enabled() {
		return
	}
	pollTotal.WithLabelValues(outcome).Inc()
}

// RPCRequest records one ledger RPC call.
func RPCRequest(method string, err error, elapsed time.Duration) {
	if !Enabled() {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	rpcRequestsTotal.WithLabelValues(method, status).Inc()
	rpcDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// HTTPRequest records one served HTTP request.
func HTTPRequest(method, path string, status int, elapsed time.Duration) {
	if !Enabled() {
		return
	}
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
