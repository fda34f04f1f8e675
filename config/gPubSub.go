package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

func getPubSubProjectID() string {
	// Prefer explicit override.
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	// Cloud Run/Cloud Functions often set this.
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return os.Getenv("GCP_PROJECT")
}

// NewPubSubClient initializes a Pub/Sub client with retries.
// It uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is provided.
func NewPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	var attempt int
	for {
		attempt++

		var (
			c   *pubsub.Client
			err error
		)
		if credJSON != "" {
			c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
		} else {
			c, err = pubsub.NewClient(ctx, projectID)
		}
		if err == nil {
			log.Printf("pubsub client ready (project_id=%s attempt=%d)", projectID, attempt)
			return c, nil
		}
		if attempt >= 5 {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}

		sleep := time.Duration(backoff(attempt)) * time.Second
		log.Printf("failed to init pubsub client (project_id=%s attempt=%d): %v; retrying in %s", projectID, attempt, err, sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// SyncTopic returns the topic used to dispatch sheet sync jobs, creating it when
// SHEET_SYNC_CREATE_TOPIC is set.
func SyncTopic(ctx context.Context, c *pubsub.Client) (*pubsub.Topic, error) {
	if c == nil {
		return nil, errors.New("pubsub client is nil")
	}
	topicName := stringFromEnv("SHEET_SYNC_TOPIC", "sheet-sync")
	t := c.Topic(topicName)
	if !envBoolDefault("SHEET_SYNC_CREATE_TOPIC", false) {
		return t, nil
	}
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return t, nil
	}
	t, err = c.CreateTopic(ctx, topicName)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", topicName, err)
	}
	return t, nil
}
