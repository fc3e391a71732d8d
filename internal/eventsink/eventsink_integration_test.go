//go:build integration

package eventsink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/zjrosen/regd/internal/dataaccess"
)

func TestSink_Redpanda(t *testing.T) {
	ctx := context.Background()
	ctr, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.2.4", redpanda.WithAutoCreateTopics())
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	broker, err := ctr.KafkaSeedBroker(ctx)
	require.NoError(t, err)

	const topic = "regd.events.test"
	sink, err := Dial(ctx, Config{Brokers: []string{broker}, Topic: topic, ClientID: "regd-test"}, "node-it", nil)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.AddLogs(ctx, []dataaccess.LogRecord{{Path: "/it", UserID: "admin", Action: dataaccess.ActionAdd}}))
	require.NoError(t, sink.PublishReload(ctx, "registry.xml", 0, nil))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var types []string
	deadline, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for len(types) < 2 {
		fetches := consumer.PollFetches(deadline)
		require.NoError(t, fetches.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			types = append(types, decode(t, r).Type)
		})
	}
	require.Equal(t, []string{TypeActivity, TypeReload}, types)
}
