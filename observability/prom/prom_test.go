package prom

import (
	"testing"
	"time"

	"github.com/floegence/d2dpair/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestHandshakeObserver(t *testing.T) {
	reg := NewRegistry()
	o := NewHandshakeObserver(reg)

	o.Handshake(observability.HandshakeRoleInitiator, observability.HandshakeResultOK, observability.HandshakeReasonOK)
	o.Handshake(observability.HandshakeRoleInitiator, observability.HandshakeResultOK, observability.HandshakeReasonOK)
	o.Handshake(observability.HandshakeRoleResponder, observability.HandshakeResultFail, "bad_next_protocol")
	o.HandshakeLatency(observability.HandshakeRoleInitiator, 20*time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(o.handshakeTotal.WithLabelValues("initiator", "ok", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(o.handshakeTotal.WithLabelValues("responder", "fail", "bad_next_protocol")))
	require.Equal(t, 1, testutil.CollectAndCount(o.handshakeLatency))
}

func TestRecordObserverCountsBytesOnSuccess(t *testing.T) {
	reg := NewRegistry()
	o := NewRecordObserver(reg)

	o.Record(observability.RecordSeal, observability.RecordResultOK, 100)
	o.Record(observability.RecordOpen, observability.RecordResultAuthFailed, 0)
	o.Record(observability.RecordSeal, observability.RecordResultError, 50)

	require.Equal(t, 1.0, testutil.ToFloat64(o.recordTotal.WithLabelValues("seal", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(o.recordTotal.WithLabelValues("open", "auth_failed")))
	require.Equal(t, 100.0, testutil.ToFloat64(o.recordBytes.WithLabelValues("seal")))
}

func TestObserversShareRegistry(t *testing.T) {
	reg := NewRegistry()
	NewHandshakeObserver(reg)
	NewRecordObserver(reg)
	require.Panics(t, func() { NewRecordObserver(reg) })
}
