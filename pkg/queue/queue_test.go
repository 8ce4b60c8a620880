package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalGate/pkg/logger"
)

type alertPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type recordingJob struct{ got []json.RawMessage }

func (j *recordingJob) Name() string { return "recording" }
func (j *recordingJob) Type() string { return "execution_failed" }
func (j *recordingJob) Handle(_ context.Context, p json.RawMessage) error {
	j.got = append(j.got, p)
	return nil
}

func TestDecode(t *testing.T) {
	msg, err := newMessage("1", "execution_failed", alertPayload{Kind: "execution_failed", Message: "boom"}, time.Unix(0, 0))
	require.NoError(t, err)

	got, err := Decode[alertPayload](msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, "boom", got.Message)

	_, err = Decode[alertPayload](nil)
	assert.Error(t, err)
	_, err = Decode[alertPayload](json.RawMessage(`{`))
	assert.Error(t, err)
}

func TestEnqueueBeforeStart(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	q := NewRedisQueue(logger.Nop(), QueueConfig{}, client, ModeProducerOnly, WithKeyPrefix("test:alerts"))
	err := q.PublishMessage(context.Background(), "execution_failed", alertPayload{})
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Equal(t, "test:alerts:messages", q.queueKey())
	assert.Equal(t, "test:alerts:dlq", q.deadLetterKey())
}

func TestRegisterJobIgnoredForProducer(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	p := NewRedisQueue(logger.Nop(), QueueConfig{}, client, ModeProducerOnly)
	p.RegisterJob(&recordingJob{})
	assert.Empty(t, p.jobs)

	c := NewRedisConsumer(logger.Nop(), QueueConfig{}, client, []Job{&recordingJob{}, &recordingJob{}})
	assert.Len(t, c.jobs, 1)
	assert.Equal(t, 1, c.config.Workers)
}

func TestProcessRoutesToJob(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	job := &recordingJob{}
	q := NewRedisConsumer(logger.Nop(), QueueConfig{}, client, []Job{job})
	msg, err := newMessage("m1", "execution_failed", alertPayload{Message: "x"}, time.Now())
	require.NoError(t, err)

	q.process(msg)
	require.Len(t, job.got, 1)
	assert.JSONEq(t, `{"kind":"","message":"x"}`, string(job.got[0]))
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "producer-only", ModeProducerOnly.String())
	assert.Equal(t, "consumer-only", ModeConsumerOnly.String())
	assert.Equal(t, "producer-consumer", ModeProducerConsumer.String())
}
