package remote

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/wykurz/rcp-sub001/wire"
)

// TraceHook is a logrus.Hook that forwards every log entry as a
// wire.TracingMessage frame over a dedicated stream, so a worker
// process's logs stay visible to the coordinator even when the worker
// runs on a remote host.
//
// Grounded on remote/src/tracelog/mod.rs's run_sender and
// common/src/remote_tracing.rs's RemoteTracingLayer: an internally
// buffered channel decouples log production from the network send, and
// a full buffer is dropped rather than allowed to block the logger.
type TraceHook struct {
	target string
	ch     chan wire.TracingMessage
}

// NewTraceHook creates a hook tagging every forwarded message with
// target (the worker's logical role, e.g. "source" or "destination").
func NewTraceHook(target string) *TraceHook {
	return &TraceHook{target: target, ch: make(chan wire.TracingMessage, 1024)}
}

func (h *TraceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *TraceHook) Fire(entry *logrus.Entry) error {
	fields := make(map[string]string, len(entry.Data))
	for k, v := range entry.Data {
		fields[k] = fieldString(v)
	}
	msg := wire.TracingMessage{
		Level:           entry.Level.String(),
		Target:          h.target,
		Message:         entry.Message,
		Fields:          fields,
		TimestampMicros: entry.Time.UnixMicro(),
	}
	select {
	case h.ch <- msg:
	default:
		// the tracing channel is stalled, not the logger itself: drop
		// rather than block the caller's log statement.
	}
	return nil
}

func fieldString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Run drains the hook's buffered messages onto send until ctx is
// cancelled or a write fails. On cancellation it returns nil; it does not
// close the underlying stream.
func (h *TraceHook) Run(ctx context.Context, send *wire.SendStream) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-h.ch:
			if err := send.WriteMessage(&wire.Message{Kind: wire.KindTracing, Tracing: &msg}); err != nil {
				return err
			}
		}
	}
}

// ReceiveTraces drains recv, re-logging every TracingMessage through
// logger tagged with its originating target, until the stream closes.
func ReceiveTraces(recv *wire.RecvStream, logger *logrus.Logger) error {
	for {
		msg, err := recv.ReadMessage()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if msg.Kind != wire.KindTracing || msg.Tracing == nil {
			continue
		}
		fields := logrus.Fields{"remote_target": msg.Tracing.Target}
		for k, v := range msg.Tracing.Fields {
			fields[k] = v
		}
		entry := logger.WithFields(fields)
		switch msg.Tracing.Level {
		case logrus.ErrorLevel.String():
			entry.Error(msg.Tracing.Message)
		case logrus.WarnLevel.String():
			entry.Warn(msg.Tracing.Message)
		case logrus.DebugLevel.String():
			entry.Debug(msg.Tracing.Message)
		case logrus.TraceLevel.String():
			entry.Trace(msg.Tracing.Message)
		default:
			entry.Info(msg.Tracing.Message)
		}
	}
}
