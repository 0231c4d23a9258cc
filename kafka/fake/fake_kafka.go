package fake

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	log "github.com/spirit-labs/strata/logger"

	"github.com/spirit-labs/strata/common"
	"github.com/spirit-labs/strata/kafka"
)

type Kafka struct {
	topicLock sync.Mutex
	topics    sync.Map
}

func (f *Kafka) CreateTopic(name string, partitions int) (*Topic, error) {
	f.topicLock.Lock()
	defer f.topicLock.Unlock()
	if _, ok := f.getTopic(name); ok {
		return nil, errors.Errorf("topic with name %s already exists", name)
	}
	parts := make([]*Partition, partitions)
	for i := 0; i < partitions; i++ {
		parts[i] = &Partition{
			id: int32(i),
		}
	}
	topic := &Topic{
		Name:       name,
		partitions: parts,
		committed:  map[int32]int64{},
	}
	f.topics.Store(name, topic)
	return topic, nil
}

func (f *Kafka) GetTopic(name string) (*Topic, bool) {
	return f.getTopic(name)
}

func (f *Kafka) DeleteTopic(name string) error {
	f.topicLock.Lock()
	defer f.topicLock.Unlock()
	topic, ok := f.getTopic(name)
	if !ok {
		return errors.Errorf("no such topic %s", name)
	}
	topic.close()
	f.topics.Delete(name)
	return nil
}

func (f *Kafka) GetTopicNames() []string {
	f.topicLock.Lock()
	defer f.topicLock.Unlock()
	var names []string
	f.topics.Range(func(key, _ interface{}) bool {
		names = append(names, key.(string))
		return true
	})
	return names
}

func (f *Kafka) getTopic(name string) (*Topic, bool) {
	t, ok := f.topics.Load(name)
	if !ok {
		return nil, false
	}
	return t.(*Topic), true
}

type Topic struct {
	Name          string
	committedLock sync.Mutex
	committed     map[int32]int64
	partitions    []*Partition
}

type Partition struct {
	lock     sync.Mutex
	id       int32
	messages []*kafka.Message
}

func (p *Partition) push(message *kafka.Message) {
	p.lock.Lock()
	defer p.lock.Unlock()
	message.PartInfo = kafka.PartInfo{
		PartitionID: p.id,
		Offset:      int64(len(p.messages)),
	}
	p.messages = append(p.messages, message)
}

func (t *Topic) Push(message *kafka.Message) error {
	part, err := t.calcPartition(message)
	if err != nil {
		return errors.WithStack(err)
	}
	t.partitions[part].push(message)
	return nil
}

// PushToPartition injects a message directly into the given partition, bypassing key hashing
func (t *Topic) PushToPartition(partitionID int, message *kafka.Message) error {
	if partitionID < 0 || partitionID >= len(t.partitions) {
		return errors.Errorf("topic %s has no partition %d", t.Name, partitionID)
	}
	t.partitions[partitionID].push(message)
	return nil
}

func (t *Topic) calcPartition(message *kafka.Message) (int, error) {
	h := common.DefaultHash(message.Key)
	partID := int(h % uint32(len(t.partitions)))
	return partID, nil
}

func (t *Topic) commitOffsets(offsets map[int32]int64) {
	t.committedLock.Lock()
	defer t.committedLock.Unlock()
	for partition, offset := range offsets {
		t.committed[partition] = offset
	}
}

// GetCommittedOffset returns the last offset committed for the partition, or false if nothing
// has been committed yet
func (t *Topic) GetCommittedOffset(partitionID int32) (int64, bool) {
	t.committedLock.Lock()
	defer t.committedLock.Unlock()
	offset, ok := t.committed[partitionID]
	return offset, ok
}

func (t *Topic) CreateSubscriber(partitionIDs []int, startOffsets []int64) (*Subscriber, error) {

	log.Debugf("creating fake kafka subscriber for partitions %v, offsets %v", partitionIDs, startOffsets)

	offsetsMap := map[int32]int64{}
	var partitions []*Partition
	for i, partitionID := range partitionIDs {
		var offset int64
		if startOffsets[i] == -1 {
			// start at beginning
			offset = 0
		} else {
			offset = startOffsets[i]
		}
		offsetsMap[int32(partitionID)] = offset
		partitions = append(partitions, t.partitions[partitionID])
	}
	subscriber := &Subscriber{
		topic:       t,
		nextOffsets: offsetsMap,
		partitions:  partitions,
	}
	return subscriber, nil
}

func (t *Topic) close() {
}

type Subscriber struct {
	topic       *Topic
	partitions  []*Partition
	stopped     atomic.Bool
	msgBuffer   []*kafka.Message
	nextOffsets map[int32]int64
}

func (c *Subscriber) GetMessage(pollTimeout time.Duration) (*kafka.Message, error) {
	if c.stopped.Load() {
		panic("subscriber is stopped")
	}
	start := time.Now()
	for time.Since(start) < pollTimeout {

		if len(c.msgBuffer) == 0 {
			for _, part := range c.partitions {
				offset, ok := c.nextOffsets[part.id]
				if !ok {
					offset = 0
				}
				part.lock.Lock()
				if len(part.messages) > int(offset) {
					msg := part.messages[offset]
					c.nextOffsets[part.id] = offset + 1
					c.msgBuffer = append(c.msgBuffer, msg)
				}
				part.lock.Unlock()
			}
		}

		if len(c.msgBuffer) != 0 {
			msg := c.msgBuffer[0]
			c.msgBuffer = c.msgBuffer[1:]
			return msg, nil
		}
		time.Sleep(1 * time.Millisecond)
	}
	return nil, nil
}

func (c *Subscriber) seek(partitionID int32, offset int64) error {
	found := false
	for _, part := range c.partitions {
		if part.id == partitionID {
			found = true
			break
		}
	}
	if !found {
		return errors.Errorf("subscriber is not assigned partition %d", partitionID)
	}
	c.nextOffsets[partitionID] = offset
	// Buffered messages for the partition must go too, otherwise they would be delivered ahead
	// of the messages at the seeked to offset
	var kept []*kafka.Message
	for _, msg := range c.msgBuffer {
		if msg.PartInfo.PartitionID != partitionID {
			kept = append(kept, msg)
		}
	}
	c.msgBuffer = kept
	return nil
}

func (c *Subscriber) Unsubscribe() error {
	c.stopped.Store(true)
	return nil
}

func NewFakeMessageClientFactory(fk *Kafka) kafka.ClientFactory {
	return func(topicName string, props map[string]string) (kafka.MessageClient, error) {
		return &MessageProviderFactory{
			fk:        fk,
			topicName: topicName,
			props:     props,
		}, nil
	}
}

type MessageProviderFactory struct {
	fk        *Kafka
	topicName string
	props     map[string]string
}

func (fmpf *MessageProviderFactory) NewMessageProvider(partitions []int, offsets []int64) (kafka.MessageProvider, error) {
	topic, ok := fmpf.fk.GetTopic(fmpf.topicName)
	if !ok {
		return nil, errors.Errorf("no such topic %s", fmpf.topicName)
	}
	return &MessageProvider{
		topic:        topic,
		partitionIDs: partitions,
		offsets:      offsets,
	}, nil
}

func (fmpf *MessageProviderFactory) PartitionCount() (int, error) {
	topic, ok := fmpf.fk.GetTopic(fmpf.topicName)
	if !ok {
		return 0, errors.Errorf("no such topic %s", fmpf.topicName)
	}
	return len(topic.partitions), nil
}

type MessageProvider struct {
	subscriber   *Subscriber
	topic        *Topic
	partitionIDs []int
	offsets      []int64
	lock         sync.Mutex
}

func (f *MessageProvider) GetMessage(pollTimeout time.Duration) (*kafka.Message, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.subscriber == nil {
		// This is ok, we must start the message consumer before the we start the message provider
		// so there is a window where the subscriber is not set.
		return nil, nil
	}
	return f.subscriber.GetMessage(pollTimeout)
}

func (f *MessageProvider) CommitOffsets(offsets map[int32]int64) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.subscriber == nil {
		return errors.New("cannot commit offsets - subscriber is not started")
	}
	f.topic.commitOffsets(offsets)
	return nil
}

func (f *MessageProvider) SeekTo(partitionID int32, offset int64) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.subscriber == nil {
		return errors.New("cannot seek - subscriber is not started")
	}
	return f.subscriber.seek(partitionID, offset)
}

func (f *MessageProvider) Start() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	subscriber, err := f.topic.CreateSubscriber(f.partitionIDs, f.offsets)
	if err != nil {
		return errors.WithStack(err)
	}
	f.subscriber = subscriber
	return nil
}

func (f *MessageProvider) Stop() error {
	f.subscriber.stopped.Store(true)
	return nil
}

func (fmpf *MessageProviderFactory) NewMessageProducer(partitionID int, _ time.Duration, _ time.Duration) (kafka.MessageProducer, error) {
	return &MessageProducer{
		fk:          fmpf.fk,
		topicName:   fmpf.topicName,
		partitionID: partitionID,
	}, nil
}

type MessageProducer struct {
	fk          *Kafka
	topicName   string
	partitionID int
}

func (f *MessageProducer) SendMessages(messages []kafka.Message) error {
	topic, ok := f.fk.GetTopic(f.topicName)
	if !ok {
		return errors.Errorf("no such topic %s", f.topicName)
	}
	for i := range messages {
		msg := messages[i]
		if f.partitionID >= 0 {
			if err := topic.PushToPartition(f.partitionID, &msg); err != nil {
				return err
			}
		} else {
			if err := topic.Push(&msg); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *MessageProducer) Stop() error {
	return nil
}

func (f *MessageProducer) Start() error {
	return nil
}
