package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"block-occupancy/internal/conflict"
)

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
	logger      *slog.Logger
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "publisher")
	nc, err := nats.Connect(url,
		nats.Name("block-occupancy"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m, logger: logger}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// ConflictMessage is the payload published for one conflict.
type ConflictMessage struct {
	RunID        string    `json:"runId"`
	SectionID    string    `json:"sectionId"`
	BlockID      string    `json:"blockId"`
	Earlier      string    `json:"earlier"`
	Later        string    `json:"later"`
	EarlierStart time.Time `json:"earlierStart"`
	LaterStart   time.Time `json:"laterStart"`
	DeltaSeconds float64   `json:"deltaSeconds"`
}

func NewConflictMessage(runID string, r conflict.Record) ConflictMessage {
	return ConflictMessage{
		RunID:        runID,
		SectionID:    r.SectionID,
		BlockID:      r.BlockID,
		Earlier:      r.Earlier,
		Later:        r.Later,
		EarlierStart: r.EarlierStart,
		LaterStart:   r.LaterStart,
		DeltaSeconds: r.Delta.Seconds(),
	}
}

// Subject returns <prefix>.<block>.<section> for a record.
func Subject(prefix string, r conflict.Record) string {
	return fmt.Sprintf("%s.%s.%s", prefix, subjectToken(r.BlockID), subjectToken(r.SectionID))
}

// PublishConflict publishes one conflict record of run runID.
func (p *NATSPublisher) PublishConflict(runID string, r conflict.Record) error {
	subject := Subject(p.prefix, r)
	b, err := json.Marshal(NewConflictMessage(runID, r))
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.logger.Debug("nats publish", slog.String("subject", subject))
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// Flush waits until the server has processed all published messages.
func (p *NATSPublisher) Flush() error {
	return p.nc.Flush()
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
