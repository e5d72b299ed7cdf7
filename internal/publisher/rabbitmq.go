package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"auction_scout/internal/domain"
)

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// AlertMessage is the JSON body of a published alert.
type AlertMessage struct {
	Kind            domain.AlertKind      `json:"kind"`
	ItemID          int64                 `json:"item_id"`
	AuctionID       string                `json:"auction_id"`
	Title           string                `json:"title"`
	AuctionURL      string                `json:"auction_url"`
	AuctionEnd      time.Time             `json:"auction_end"`
	HoursRemaining  float64               `json:"hours_remaining"`
	CurrentBid      decimal.Decimal       `json:"current_bid"`
	EstimatedValue  decimal.Decimal       `json:"estimated_value"`
	PotentialProfit decimal.Decimal       `json:"potential_profit"`
	ProfitMargin    decimal.NullDecimal   `json:"profit_margin"`
	Confidence      float64               `json:"confidence_score"`
	Recommendation  domain.Recommendation `json:"recommendation"`
	Keywords        []string              `json:"keywords"`
	Timestamp       time.Time             `json:"timestamp"`
}

func NewAlertMessage(alert *domain.Alert, now time.Time) AlertMessage {
	var hours float64
	if !alert.Item.AuctionEnd.IsZero() {
		hours = math.Round(alert.Item.AuctionEnd.Sub(now).Hours()*10) / 10
	}

	return AlertMessage{
		Kind:            alert.Kind,
		ItemID:          alert.Item.ID,
		AuctionID:       alert.Item.AuctionID,
		Title:           alert.Item.Title,
		AuctionURL:      alert.Item.AuctionURL,
		AuctionEnd:      alert.Item.AuctionEnd,
		HoursRemaining:  hours,
		CurrentBid:      alert.Analysis.CurrentBid,
		EstimatedValue:  alert.Analysis.EstimatedValue,
		PotentialProfit: alert.Analysis.PotentialProfit,
		ProfitMargin:    alert.Analysis.ProfitMargin,
		Confidence:      alert.Analysis.ConfidenceScore,
		Recommendation:  alert.Analysis.Recommendation,
		Keywords:        alert.Keywords,
		Timestamp:       now.UTC(),
	}
}

func (r *RabbitMQ) Publish(ctx context.Context, alert *domain.Alert) error {
	msg := NewAlertMessage(alert, time.Now())

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    msg.AuctionID,
			Body:         body,
			Timestamp:    msg.Timestamp,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published alert",
		"kind", msg.Kind,
		"auction_id", msg.AuctionID,
		"recommendation", msg.Recommendation,
		"keywords", msg.Keywords,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
