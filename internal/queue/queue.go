package queue

import (
	"encoding/json"

	"github.com/streadway/amqp"
)

// SendQueueName is the durable queue carrying campaign send jobs from the
// API to the worker.
const SendQueueName = "campaign_sends"

// SendJob asks the worker to run the send pipeline for one campaign.
type SendJob struct {
	CampaignID int `json:"campaign_id"`
	RetryCount int `json:"retry_count"`
}

// Publisher enqueues campaign send jobs.
type Publisher interface {
	PublishSend(job SendJob) error
}

// AMQPQueue wraps one RabbitMQ connection and channel with the send
// queue declared.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to RabbitMQ and declares the durable send queue.
func Dial(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	_, err = ch.QueueDeclare(
		SendQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPQueue{conn: conn, ch: ch}, nil
}

// PublishSend enqueues one campaign send job.
func (q *AMQPQueue) PublishSend(job SendJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",
		SendQueueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Consume registers a consumer on the send queue. Deliveries must be
// acked manually.
func (q *AMQPQueue) Consume() (<-chan amqp.Delivery, error) {
	return q.ch.Consume(
		SendQueueName,
		"",
		false, // autoAck off for reliability
		false,
		false,
		false,
		nil,
	)
}

func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

var _ Publisher = (*AMQPQueue)(nil)
