package consumer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/spirit-labs/strata/kafka"
	"github.com/spirit-labs/strata/kafka/fake"
	"github.com/spirit-labs/strata/objstore/dev"
	"github.com/spirit-labs/strata/sink"
	"github.com/spirit-labs/strata/testutils"
	"github.com/stretchr/testify/require"
)

const testBucketName = "test-bucket"

func TestConsumerStoresAndCommits(t *testing.T) {
	env, tearDown := setupConsumer(t, 1, func(conf *sink.Conf) {
		conf.MaxRecordsPerFile = 4
	})
	defer tearDown(t)
	for i := 0; i < 4; i++ {
		pushMessage(t, env, 0, fmt.Sprintf(`{"id":%d}`, i))
	}
	require.NoError(t, env.cons.Start())

	waitForStoredObjects(t, env, 1)
	key := storedObjectKey(0, 0, 3)
	require.Equal(t, []string{key}, storedKeys(t, env))
	require.Equal(t, "{\"id\":0}\n{\"id\":1}\n{\"id\":2}\n{\"id\":3}\n", storedBody(t, env, key))
	waitForCommittedOffset(t, env, 0, 4)
}

func TestConsumerMultiplePartitions(t *testing.T) {
	env, tearDown := setupConsumer(t, 2, func(conf *sink.Conf) {
		conf.MaxRecordsPerFile = 2
	})
	defer tearDown(t)
	pushMessage(t, env, 0, `{"id":0}`)
	pushMessage(t, env, 1, `{"id":100}`)
	pushMessage(t, env, 0, `{"id":1}`)
	pushMessage(t, env, 1, `{"id":101}`)
	require.NoError(t, env.cons.Start())

	waitForStoredObjects(t, env, 2)
	require.Equal(t, []string{
		storedObjectKey(0, 0, 1),
		storedObjectKey(1, 0, 1),
	}, storedKeys(t, env))
	require.Equal(t, "{\"id\":0}\n{\"id\":1}\n", storedBody(t, env, storedObjectKey(0, 0, 1)))
	require.Equal(t, "{\"id\":100}\n{\"id\":101}\n", storedBody(t, env, storedObjectKey(1, 0, 1)))
	waitForCommittedOffset(t, env, 0, 2)
	waitForCommittedOffset(t, env, 1, 2)
}

func TestConsumerResumesFromStoredOffsets(t *testing.T) {
	env, tearDown := setupConsumer(t, 1, func(conf *sink.Conf) {
		conf.MaxRecordsPerFile = 2
	})
	defer tearDown(t)
	for i := 0; i < 4; i++ {
		pushMessage(t, env, 0, fmt.Sprintf(`{"id":%d}`, i))
	}
	require.NoError(t, env.cons.Start())
	waitForStoredObjects(t, env, 2)
	require.NoError(t, env.cons.Stop())

	// a new consumer derives its start position from the stored objects, not from kafka
	env.task, env.cons = newTaskAndConsumer(t, env, func(conf *sink.Conf) {
		conf.MaxRecordsPerFile = 2
	})
	pushMessage(t, env, 0, `{"id":4}`)
	pushMessage(t, env, 0, `{"id":5}`)
	require.NoError(t, env.cons.Start())

	waitForStoredObjects(t, env, 3)
	require.Equal(t, []string{
		storedObjectKey(0, 0, 1),
		storedObjectKey(0, 2, 3),
		storedObjectKey(0, 4, 5),
	}, storedKeys(t, env))
	require.Equal(t, "{\"id\":4}\n{\"id\":5}\n", storedBody(t, env, storedObjectKey(0, 4, 5)))
	waitForCommittedOffset(t, env, 0, 6)
}

func TestConsumerRetriesOnStorageFailure(t *testing.T) {
	env, tearDown := setupConsumer(t, 1, func(conf *sink.Conf) {
		conf.MaxRecordsPerFile = 2
	})
	defer tearDown(t)
	require.NoError(t, env.cons.Start())
	env.objStore.SetUnavailable(true)
	pushMessage(t, env, 0, `{"id":0}`)
	pushMessage(t, env, 0, `{"id":1}`)

	// the sealed file cannot be stored, the consumer retries and commits nothing
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int64(-1), env.task.CommittedOffset(0))
	_, ok := env.topic.GetCommittedOffset(0)
	require.False(t, ok)

	env.objStore.SetUnavailable(false)
	waitForStoredObjects(t, env, 1)
	require.Equal(t, "{\"id\":0}\n{\"id\":1}\n", storedBody(t, env, storedObjectKey(0, 0, 1)))
	waitForCommittedOffset(t, env, 0, 2)
}

func TestConsumerPoisonMessageRollsBackPartition(t *testing.T) {
	env, tearDown := setupConsumer(t, 2, func(conf *sink.Conf) {
		conf.MaxRecordsPerFile = 3
	})
	defer tearDown(t)
	pushMessage(t, env, 0, `not json`)
	pushMessage(t, env, 1, `{"id":100}`)
	pushMessage(t, env, 1, `{"id":101}`)
	pushMessage(t, env, 1, `{"id":102}`)
	require.NoError(t, env.cons.Start())

	// partition 1 keeps flowing while partition 0 is rolled back and replayed
	waitForStoredObjects(t, env, 1)
	key := storedObjectKey(1, 0, 2)
	require.Equal(t, []string{key}, storedKeys(t, env))
	require.Equal(t, "{\"id\":100}\n{\"id\":101}\n{\"id\":102}\n", storedBody(t, env, key))
	require.Equal(t, int64(-1), env.task.CommittedOffset(0))
	waitForCommittedOffset(t, env, 1, 3)
}

func TestConsumerIdleFlush(t *testing.T) {
	env, tearDown := setupConsumer(t, 1, func(conf *sink.Conf) {
		conf.MaxFileOpenTime = 20 * time.Millisecond
	})
	defer tearDown(t)
	require.NoError(t, env.cons.Start())
	pushMessage(t, env, 0, `{"id":0}`)

	// nothing else arrives, the file is sealed once it passes max file open time
	waitForStoredObjects(t, env, 1)
	require.Equal(t, "{\"id\":0}\n", storedBody(t, env, storedObjectKey(0, 0, 0)))
	waitForCommittedOffset(t, env, 0, 1)
}

func TestConsumerStopFlushesBufferedRecords(t *testing.T) {
	env, tearDown := setupConsumer(t, 1, nil)
	defer tearDown(t)
	require.NoError(t, env.cons.Start())
	pushMessage(t, env, 0, `{"id":0}`)

	// no rotation threshold is reached, the record stays buffered until we stop
	time.Sleep(250 * time.Millisecond)
	require.Empty(t, storedKeys(t, env))
	require.NoError(t, env.cons.Stop())

	require.Equal(t, "{\"id\":0}\n", storedBody(t, env, storedObjectKey(0, 0, 0)))
	committed, ok := env.topic.GetCommittedOffset(0)
	require.True(t, ok)
	require.Equal(t, int64(1), committed)
}

func TestConsumerStartStop(t *testing.T) {
	env, tearDown := setupConsumer(t, 1, nil)
	defer tearDown(t)
	require.NoError(t, env.cons.Start())
	// idempotent
	require.NoError(t, env.cons.Start())
	require.NoError(t, env.cons.Stop())
	require.NoError(t, env.cons.Stop())
}

type consumerEnv struct {
	fk       *fake.Kafka
	topic    *fake.Topic
	objStore *dev.InMemStore
	task     *sink.Task
	cons     *Consumer
}

func setupConsumer(t *testing.T, partitions int, sinkSetter func(conf *sink.Conf)) (*consumerEnv, func(t *testing.T)) {
	t.Helper()
	fk := &fake.Kafka{}
	topic, err := fk.CreateTopic("payments", partitions)
	require.NoError(t, err)
	env := &consumerEnv{
		fk:       fk,
		topic:    topic,
		objStore: dev.NewInMemStore(0),
	}
	env.task, env.cons = newTaskAndConsumer(t, env, sinkSetter)
	return env, func(t *testing.T) {
		err := env.cons.Stop()
		require.NoError(t, err)
	}
}

func newTaskAndConsumer(t *testing.T, env *consumerEnv, sinkSetter func(conf *sink.Conf)) (*sink.Task, *Consumer) {
	t.Helper()
	sinkConf := sink.NewConf()
	sinkConf.TopicName = "payments"
	sinkConf.BucketName = testBucketName
	if sinkSetter != nil {
		sinkSetter(&sinkConf)
	}
	task, err := sink.NewTask(sinkConf, env.objStore)
	require.NoError(t, err)
	msgClient, err := fake.NewFakeMessageClientFactory(env.fk)("payments", nil)
	require.NoError(t, err)
	conf := NewConf()
	conf.PollTimeout = 10 * time.Millisecond
	conf.CommitInterval = 10 * time.Millisecond
	conf.RetryInterval = 10 * time.Millisecond
	cons, err := NewConsumer(conf, task, msgClient)
	require.NoError(t, err)
	return task, cons
}

func pushMessage(t *testing.T, env *consumerEnv, partition int, value string) {
	t.Helper()
	err := env.topic.PushToPartition(partition, &kafka.Message{
		Key:       []byte("key"),
		Value:     []byte(value),
		TimeStamp: time.UnixMilli(1700000000000).UTC(),
	})
	require.NoError(t, err)
}

func storedKeys(t *testing.T, env *consumerEnv) []string {
	t.Helper()
	infos, err := env.objStore.ListObjectsWithPrefix(context.Background(), testBucketName, "topics/payments/", -1)
	require.NoError(t, err)
	keys := make([]string, len(infos))
	for i, info := range infos {
		keys[i] = info.Key
	}
	return keys
}

func storedBody(t *testing.T, env *consumerEnv, key string) string {
	t.Helper()
	data, err := env.objStore.Get(context.Background(), testBucketName, key)
	require.NoError(t, err)
	require.NotNil(t, data)
	return string(data)
}

func storedObjectKey(partition int, start int64, end int64) string {
	return fmt.Sprintf("topics/payments/partition=%d/payments-%05d-%020d-%020d.json", partition, partition,
		start, end)
}

func waitForStoredObjects(t *testing.T, env *consumerEnv, numObjects int) {
	t.Helper()
	testutils.WaitUntil(t, func() (bool, error) {
		infos, err := env.objStore.ListObjectsWithPrefix(context.Background(), testBucketName, "topics/payments/",
			-1)
		if err != nil {
			return false, err
		}
		return len(infos) == numObjects, nil
	})
}

func waitForCommittedOffset(t *testing.T, env *consumerEnv, partition int32, offset int64) {
	t.Helper()
	testutils.WaitUntil(t, func() (bool, error) {
		committed, ok := env.topic.GetCommittedOffset(partition)
		return ok && committed == offset, nil
	})
}
