package subscriber

import (
	"context"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/mathewtroy/candle/events"
	natsClient "github.com/mathewtroy/candle/nats"
)

const (
	streamName  = "CANDLE_LIKES"
	durableName = "candle-like-reconciler"
	queueGroup  = "candle-reconcilers"
)

// Recounter rewrites a post's like counter from its like records.
type Recounter interface {
	RecountPost(ctx context.Context, postID string) (int64, error)
}

// DriftSubscriber consumes like counter drift reports and recounts the
// affected posts.
type DriftSubscriber struct {
	natsClient *natsClient.Client
	recounter  Recounter
	ctx        context.Context
	sub        *nats.Subscription
}

func NewDriftSubscriber(ctx context.Context, natsClient *natsClient.Client, recounter Recounter) *DriftSubscriber {
	return &DriftSubscriber{
		natsClient: natsClient,
		recounter:  recounter,
		ctx:        ctx,
	}
}

func (s *DriftSubscriber) Start() error {
	if err := s.natsClient.CreateStream(streamName, []string{events.PostLikesDrifted}); err != nil {
		log.Printf("Stream might already exist or error creating: %v", err)
	}

	sub, err := s.natsClient.SubscribeDurable(events.PostLikesDrifted, durableName, queueGroup, s.handle)
	if err != nil {
		return err
	}
	s.sub = sub

	log.Println("Like drift subscriber started successfully")
	return nil
}

func (s *DriftSubscriber) handle(msg *nats.Msg) {
	var event events.PostLikesDriftedEvent
	if err := natsClient.DecodeEvent(msg, &event); err != nil {
		log.Printf("Error decoding likes drifted event: %v", err)
		// malformed payloads never decode, drop them
		_ = msg.Term()
		return
	}

	count, err := s.recounter.RecountPost(s.ctx, event.PostID)
	if err != nil {
		log.Printf("Error recounting likes for post %s: %v", event.PostID, err)
		_ = msg.Nak()
		return
	}

	log.Printf("Recounted likes for post %s: %d", event.PostID, count)
	_ = msg.Ack()
}

func (s *DriftSubscriber) Stop() error {
	if s.sub != nil {
		return s.sub.Unsubscribe()
	}
	return nil
}
