package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
)

// MessageWriter subconjunto de *kafka.Writer (permite dobles en tests).
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publica eventos de ventas y catálogo en un tópico. La clave es el ID de la entidad.
type Publisher struct {
	writer  MessageWriter
	timeout time.Duration
	now     func() time.Time
}

// NewPublisher crea un publicador con un kafka.Writer sobre los brokers dados.
func NewPublisher(brokers []string, topic string) *Publisher {
	return NewPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	})
}

// NewPublisherWithWriter usa el writer indicado.
func NewPublisherWithWriter(w MessageWriter) *Publisher {
	return &Publisher{writer: w, timeout: 5 * time.Second, now: time.Now}
}

func (p *Publisher) publish(ctx context.Context, eventType, key string, payload any) error {
	value, err := json.Marshal(Envelope{Type: eventType, OccurredAt: p.now(), Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}

	// El evento no debe perderse si el request que lo originó ya terminó.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Time:    p.now(),
		Headers: []kafka.Header{{Key: "type", Value: []byte(eventType)}},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

func (p *Publisher) SaleCommitted(ctx context.Context, sale *entity.Sale) error {
	return p.publish(ctx, EventSaleCommitted, sale.ID, newSaleEvent(sale, nil))
}

func (p *Publisher) SaleReversed(ctx context.Context, sale *entity.Sale, skipped []string) error {
	return p.publish(ctx, EventSaleReversed, sale.ID, newSaleEvent(sale, skipped))
}

func (p *Publisher) SaleDeleted(ctx context.Context, saleID string) error {
	return p.publish(ctx, EventSaleDeleted, saleID, SaleDeletedEvent{SaleID: saleID})
}

// ProductChanged reenvía un cambio del feed de productos.
func (p *Publisher) ProductChanged(ctx context.Context, change entity.ProductChange) error {
	return p.publish(ctx, productEventType(change.Type), change.Product.ID, ProductEvent{
		ProductID:    change.Product.ID,
		Name:         change.Product.Name,
		Quantity:     change.Product.Quantity,
		UnitPriceUSD: change.Product.UnitPriceUSD,
	})
}

// Close vacía y cierra el writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// NopPublisher publicador deshabilitado (sin brokers configurados).
type NopPublisher struct{}

func (NopPublisher) SaleCommitted(context.Context, *entity.Sale) error           { return nil }
func (NopPublisher) SaleReversed(context.Context, *entity.Sale, []string) error { return nil }
func (NopPublisher) SaleDeleted(context.Context, string) error                  { return nil }
func (NopPublisher) ProductChanged(context.Context, entity.ProductChange) error { return nil }
func (NopPublisher) Close() error                                               { return nil }
