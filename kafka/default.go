package kafka

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	segment "github.com/segmentio/kafka-go"
	"github.com/spirit-labs/strata/common"
	log "github.com/spirit-labs/strata/logger"
)

const seekTimeoutMs = 30 * 1000

func NewMessageProviderFactory(topicName string, props map[string]string) (MessageClient, error) {
	var earliest bool
	sAutoOffsetReset, ok := props["auto.offset.reset"]
	if !ok {
		// default to latest
		earliest = false
	} else {
		if sAutoOffsetReset == "earliest" {
			earliest = true
		} else if sAutoOffsetReset == "latest" {
			earliest = false
		} else {
			return nil, common.NewStrataErrorf(common.InvalidConfiguration, "invalid value for auto.offset.reset: %s - must be one of 'earliest' or 'latest'", sAutoOffsetReset)
		}
	}
	return &DefaultMessageProviderFactory{
		topicName: topicName,
		props:     props,
		earliest:  earliest,
	}, nil
}

type DefaultMessageProviderFactory struct {
	topicName string
	props     map[string]string
	earliest  bool
}

func (dmpf *DefaultMessageProviderFactory) NewMessageProvider(partitions []int, offsets []int64) (MessageProvider, error) {
	kmp := &DefaultMessageProvider{}
	kmp.krpf = dmpf
	kmp.topicName = dmpf.topicName
	// generate a group id - we don't use consumer re-balancing as we assign partitions to consumers explicitly
	// however Kafka still requires group.id to be set
	kmp.groupID = fmt.Sprintf("strata-%s-%s", dmpf.topicName, uuid.New().String())
	topicPartitions := make([]kafka.TopicPartition, len(partitions))

	for i, partitionID := range partitions {
		var offset kafka.Offset
		if offsets[i] == -1 {
			// -1 represents we haven't yet consumed any messages
			if dmpf.earliest {
				// start at the first message in the partition
				offset = kafka.OffsetBeginning
			} else {
				// start at end
				offset = kafka.OffsetEnd
			}
		} else {
			// carry on where we left off
			offset = kafka.Offset(offsets[i])
		}
		topicPartitions[i] = kafka.TopicPartition{
			Topic:     &dmpf.topicName,
			Partition: int32(partitionID),
			Offset:    offset,
		}
	}
	kmp.partitions = topicPartitions
	return kmp, nil
}

func (dmpf *DefaultMessageProviderFactory) NewMessageProducer(partitionID int, connectTimeout time.Duration,
	sendTimeout time.Duration) (MessageProducer, error) {
	mp := &DefaultMessageProducer{}
	mp.dmpf = dmpf
	mp.topicName = dmpf.topicName
	mp.partitionID = partitionID
	mp.connectTimeout = connectTimeout
	mp.sendTimeout = sendTimeout
	return mp, nil
}

// PartitionCount reads the partition metadata for the topic from the first reachable bootstrap server
func (dmpf *DefaultMessageProviderFactory) PartitionCount() (int, error) {
	bootstrapServers, err := dmpf.bootstrapServers()
	if err != nil {
		return 0, err
	}
	var lastErr error
	for _, address := range bootstrapServers {
		conn, err := segment.Dial("tcp", address)
		if err != nil {
			log.Warnf("failed to connect to kafka server %s - %v", address, err)
			lastErr = err
			continue
		}
		parts, err := conn.ReadPartitions(dmpf.topicName)
		if err2 := conn.Close(); err2 != nil {
			// Ignore
		}
		if err != nil {
			lastErr = err
			continue
		}
		return len(parts), nil
	}
	return 0, errors.Errorf("unable to read partitions for topic %s from any of the kafka bootstrap servers: %v - %v",
		dmpf.topicName, bootstrapServers, lastErr)
}

func (dmpf *DefaultMessageProviderFactory) bootstrapServers() ([]string, error) {
	bs, ok := dmpf.props["bootstrap.servers"]
	if !ok {
		return nil, common.NewStrataErrorf(common.InvalidConfiguration, "bootstrap.servers must be specified")
	}
	var servers []string
	for _, s := range strings.Split(bs, ",") {
		servers = append(servers, strings.Trim(s, " "))
	}
	return servers, nil
}

/*
DefaultMessageProducer
We use the segmentio Kafka client as the Confluent client sadly doesn't return errors when target Kafka is unavailable -
instead it retries to send forever. This makes it very hard to use for us where we need to block on send until the
messages are delivered, but we also need to error immediately if Kafka not available so we can backoff and retry after
a delay.
*/
type DefaultMessageProducer struct {
	dmpf             *DefaultMessageProviderFactory
	topicName        string
	partitionID      int
	conn             *segment.Conn
	bootstrapServers []string
	acks             int
	bootstrapPos     int
	lock             sync.RWMutex
	connectTimeout   time.Duration
	sendTimeout      time.Duration
}

func (dmp *DefaultMessageProducer) Stop() error {
	dmp.lock.Lock()
	defer dmp.lock.Unlock()
	if dmp.conn != nil {
		return dmp.conn.Close()
	}
	return nil
}

func (dmp *DefaultMessageProducer) Start() error {
	bootstrapServers, err := dmp.dmpf.bootstrapServers()
	if err != nil {
		return err
	}
	dmp.bootstrapServers = bootstrapServers
	sacks, ok := dmp.dmpf.props["acks"]
	acks := -1
	if ok {
		switch sacks {
		case "1":
			acks = 1
		case "0":
			acks = 0
		case "all":
			acks = -1
		default:
			return common.NewStrataErrorf(common.InvalidConfiguration, "invalid value for acks: %s", sacks)
		}
	}
	dmp.acks = acks
	return nil
}

func (dmp *DefaultMessageProducer) SendMessages(msgs []Message) error {
	dmp.lock.RLock()
	defer dmp.lock.RUnlock()
	if dmp.conn == nil {
		conn, err := dmp.createConnection()
		if err != nil {
			return err
		}
		dmp.conn = conn
	}
	segMsgs := make([]segment.Message, len(msgs))
	for i, msg := range msgs {
		var headers []segment.Header
		if len(msg.Headers) > 0 {
			headers = make([]segment.Header, len(msg.Headers))
			for j, hdr := range msg.Headers {
				headers[j] = segment.Header{
					Key:   hdr.Key,
					Value: hdr.Value,
				}
			}
		}
		segMsgs[i] = segment.Message{
			Time:    msg.TimeStamp,
			Key:     msg.Key,
			Value:   msg.Value,
			Headers: headers,
		}
	}
	if err := dmp.conn.SetWriteDeadline(time.Now().Add(dmp.sendTimeout)); err != nil {
		return err
	}
	_, err := dmp.conn.WriteMessages(segMsgs...)
	if err != nil {
		// We close connection on error, next attempt will try with next bootstrap server
		if err := dmp.conn.Close(); err != nil {
			// Ignore
		}
		dmp.conn = nil
	}
	return err
}

func (dmp *DefaultMessageProducer) createConnection() (*segment.Conn, error) {
	startPos := dmp.bootstrapPos
	for {
		address := dmp.bootstrapServers[dmp.bootstrapPos]
		dmp.bootstrapPos++
		if dmp.bootstrapPos == len(dmp.bootstrapServers) {
			dmp.bootstrapPos = 0
		}
		ctx, cancel := context.WithTimeout(context.Background(), dmp.connectTimeout)
		conn, err := segment.DialLeader(ctx, "tcp", address, dmp.topicName, dmp.partitionID)
		//goland:noinspection ALL
		defer cancel()
		if err == nil {
			if err := conn.SetRequiredAcks(dmp.acks); err != nil {
				return nil, err
			}
			return conn, nil
		}
		log.Warnf("failed to connect to kafka server %s - %v", address, err)
		if dmp.bootstrapPos == startPos {
			return nil, errors.Errorf("unable to connect to any of the kafka bootstrap servers: %v", dmp.bootstrapServers)
		}
	}
}

var _ MessageProducer = &DefaultMessageProducer{}

type DefaultMessageProvider struct {
	lock       sync.Mutex
	consumer   *kafka.Consumer
	topicName  string
	groupID    string
	partitions []kafka.TopicPartition
	krpf       *DefaultMessageProviderFactory
}

var _ MessageProvider = &DefaultMessageProvider{}

func (dmp *DefaultMessageProvider) GetMessage(pollTimeout time.Duration) (*Message, error) {
	dmp.lock.Lock()
	defer dmp.lock.Unlock()
	if dmp.consumer == nil {
		return nil, nil
	}

	ev := dmp.consumer.Poll(int(pollTimeout.Milliseconds()))
	if ev == nil {
		return nil, nil
	}
	switch e := ev.(type) {
	case *kafka.Message:
		msg := e
		headers := make([]MessageHeader, len(msg.Headers))
		for i, hdr := range msg.Headers {
			headers[i] = MessageHeader{
				Key:   hdr.Key,
				Value: hdr.Value,
			}
		}
		m := &Message{
			PartInfo: PartInfo{
				PartitionID: msg.TopicPartition.Partition,
				Offset:      int64(msg.TopicPartition.Offset),
			},
			TimeStamp: msg.Timestamp,
			Key:       msg.Key,
			Value:     msg.Value,
			Headers:   headers,
		}
		return m, nil
	case kafka.Error:
		return nil, e
	default:
		return nil, errors.Errorf("unexpected result from poll %+v", e)
	}
}

func (dmp *DefaultMessageProvider) CommitOffsets(offsets map[int32]int64) error {
	dmp.lock.Lock()
	defer dmp.lock.Unlock()
	if dmp.consumer == nil {
		return errors.Errorf("cannot commit offsets - message provider is not started")
	}
	topicPartitions := make([]kafka.TopicPartition, 0, len(offsets))
	for partition, offset := range offsets {
		topicPartitions = append(topicPartitions, kafka.TopicPartition{
			Topic:     &dmp.topicName,
			Partition: partition,
			Offset:    kafka.Offset(offset),
		})
	}
	_, err := dmp.consumer.CommitOffsets(topicPartitions)
	return errors.WithStack(err)
}

func (dmp *DefaultMessageProvider) SeekTo(partition int32, offset int64) error {
	dmp.lock.Lock()
	defer dmp.lock.Unlock()
	if dmp.consumer == nil {
		return errors.Errorf("cannot seek - message provider is not started")
	}
	err := dmp.consumer.Seek(kafka.TopicPartition{
		Topic:     &dmp.topicName,
		Partition: partition,
		Offset:    kafka.Offset(offset),
	}, seekTimeoutMs)
	return errors.WithStack(err)
}

func (dmp *DefaultMessageProvider) Stop() error {
	dmp.lock.Lock()
	defer dmp.lock.Unlock()
	err := dmp.consumer.Close()
	dmp.consumer = nil
	return errors.WithStack(err)
}

func (dmp *DefaultMessageProvider) Start() error {
	dmp.lock.Lock()
	defer dmp.lock.Unlock()
	cm := &kafka.ConfigMap{
		"auto.offset.reset":    "earliest",
		"enable.auto.commit":   false,
		"session.timeout.ms":   30 * 1000,
		"max.poll.interval.ms": 60 * 1000,
		"group.id":             dmp.groupID,
	}
	_, ok := dmp.krpf.props["bootstrap.servers"]
	if !ok {
		return common.NewStrataErrorf(common.InvalidConfiguration, "cannot start message provider - bootstrap.servers must be specified")
	}
	for k, v := range dmp.krpf.props {
		if err := cm.SetKey(k, v); err != nil {
			return errors.WithStack(err)
		}
	}
	consumer, err := kafka.NewConsumer(cm)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := consumer.Assign(dmp.partitions); err != nil {
		return errors.WithStack(err)
	}
	dmp.consumer = consumer
	return nil
}
