package syncjob

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fieldops_backend/config"
	"github.com/sirupsen/logrus"
)

type SyncPubSubPayload struct {
	JobId        string `json:"jobId"`
	ConnectionId uint   `json:"connectionId"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageId string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PubSubDispatcher publishes queued jobs; the push endpoint runs them.
type PubSubDispatcher struct {
	topic *pubsub.Topic
}

func NewPubSubDispatcher(topic *pubsub.Topic) *PubSubDispatcher {
	return &PubSubDispatcher{topic: topic}
}

func (d *PubSubDispatcher) Dispatch(ctx context.Context, job Job) error {
	payload := SyncPubSubPayload{
		JobId:        job.ID,
		ConnectionId: job.ConnectionID,
	}
	data, _ := json.Marshal(payload)
	res := d.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"connection_id": strconv.FormatUint(uint64(job.ConnectionID), 10)},
	})
	_, err := res.Get(ctx)
	return err
}

// PubSubPushHandler always acknowledges so a bad message is not redelivered
// forever; failures end up on the job itself.
func PubSubPushHandler(m *Manager, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_SHEET_SYNC_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.JobId == "" || payload.ConnectionId == 0 {
			c.Status(204)
			return
		}

		err = m.ExecuteByID(c.Request.Context(), payload.JobId)
		config.LogError(logger, "syncjob", "PubSubPushHandler", "run pushed job", payload, err)
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
