// Package broadcaster drains the fill outbox to kafka. It is the only
// component that talks to the fills topic; the engine itself never
// blocks on the broker.
package broadcaster

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/holiman/uint256"

	"github.com/ruquant/karoot-singapore/infra/outbox"
)

type Broadcaster struct {
	outbox   *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
}

// Event is the published fill, versioned for downstream consumers.
type Event struct {
	V       int    `json:"v"`
	Type    string `json:"type"`
	Seq     uint64 `json:"seq"`
	Sub     uint32 `json:"sub"`
	OrderID uint64 `json:"order_id"`
	Owner   string `json:"owner"`
	Shares  string `json:"shares"`
	Value   string `json:"value"`
}

func New(ob *outbox.Outbox, brokers []string, topic string) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Broadcaster{
		outbox:   ob,
		producer: producer,
		topic:    topic,
		interval: 250 * time.Millisecond,
	}, nil
}

func (b *Broadcaster) Start(ctx context.Context) {
	log.Println("[broadcaster] started")

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.drainOnce()
			}
		}
	}()
}

// drainOnce publishes every NEW fill. Mark SENT before the publish and
// ACKED after the broker confirms; a crash in between leaves the fill
// in SENT, which the next pass retries (at-least-once, consumers
// dedupe on seq/sub).
func (b *Broadcaster) drainOnce() {
	_ = b.outbox.ScanState(outbox.StateNew, b.publish)
	_ = b.outbox.ScanState(outbox.StateSent, b.publish)
	_ = b.outbox.ScanState(outbox.StateFailed, b.publish)
}

func (b *Broadcaster) publish(f outbox.Fill) error {
	if err := b.outbox.MarkSent(f.Seq, f.Sub); err != nil {
		return err
	}
	payload, err := json.Marshal(eventOf(f))
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(hex.EncodeToString(f.Owner[:])),
		Value: sarama.ByteEncoder(payload),
	}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		_ = b.outbox.MarkFailed(f.Seq, f.Sub)
		return nil // retry next pass
	}
	return b.outbox.MarkAcked(f.Seq, f.Sub)
}

func eventOf(f outbox.Fill) Event {
	var shares, value uint256.Int
	shares.SetBytes(f.Shares[:])
	value.SetBytes(f.Value[:])
	return Event{
		V:       1,
		Type:    "fill",
		Seq:     f.Seq,
		Sub:     f.Sub,
		OrderID: f.OrderID,
		Owner:   hex.EncodeToString(f.Owner[:]),
		Shares:  shares.Dec(),
		Value:   value.Dec(),
	}
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
