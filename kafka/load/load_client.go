package load

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/spirit-labs/strata/common"
	"github.com/spirit-labs/strata/kafka"
	log "github.com/spirit-labs/strata/logger"
)

var _ kafka.MessageClient = &MessageProviderFactory{}

var _ kafka.ClientFactory = NewMessageProviderFactory

// MessageProviderFactory is a message client that generates its own messages. It is used for load testing
// the sink without needing a Kafka cluster to consume from
type MessageProviderFactory struct {
	bufferSize             int
	properties             map[string]string
	partitionCount         int
	maxMessagesPerConsumer int64
	uniqueIDsPerPartition  int64
	messageGeneratorName   string
	committedOffsets       map[int32]int64
	committedOffsetsLock   sync.Mutex
	messageProviders       []*MessageProvider
}

const (
	produceTimeout                 = 100 * time.Millisecond
	bufferSizePropName             = "strata.loadclient.buffersize"
	partitionCountPropName         = "strata.loadclient.partitions"
	uniqueIDsPerPartitionPropName  = "strata.loadclient.uniqueidsperpartition"
	maxMessagesPerConsumerPropName = "strata.loadclient.maxmessagesperconsumer"
	messageGeneratorPropName       = "strata.loadclient.messagegenerator"
	defaultMessageGeneratorName    = "simple"
	defaultPartitionCount          = 4
)

var factoriesLock sync.Mutex

var factories []*MessageProviderFactory

func Factories() []*MessageProviderFactory {
	factoriesLock.Lock()
	defer factoriesLock.Unlock()
	return factories
}

func NewMessageProviderFactory(_ string, properties map[string]string) (kafka.MessageClient, error) {
	bufferSize, err := common.GetOrDefaultIntProperty(bufferSizePropName, properties, 1000)
	if err != nil {
		return nil, err
	}
	partitionCount, err := common.GetOrDefaultIntProperty(partitionCountPropName, properties, defaultPartitionCount)
	if err != nil {
		return nil, err
	}
	uniqueIDsPerPartition, err := common.GetOrDefaultIntProperty(uniqueIDsPerPartitionPropName, properties, math.MaxInt64)
	if err != nil {
		return nil, err
	}
	maxMessagesPerConsumer, err := common.GetOrDefaultIntProperty(maxMessagesPerConsumerPropName, properties, math.MaxInt64)
	if err != nil {
		return nil, err
	}
	msgGeneratorName, ok := properties[messageGeneratorPropName]
	if !ok {
		msgGeneratorName = defaultMessageGeneratorName
	}
	fact := &MessageProviderFactory{
		bufferSize:             bufferSize,
		properties:             properties,
		partitionCount:         partitionCount,
		uniqueIDsPerPartition:  int64(uniqueIDsPerPartition),
		maxMessagesPerConsumer: int64(maxMessagesPerConsumer),
		messageGeneratorName:   msgGeneratorName,
		committedOffsets:       map[int32]int64{},
	}
	factoriesLock.Lock()
	defer factoriesLock.Unlock()
	factories = append(factories, fact)
	return fact, nil
}

func (l *MessageProviderFactory) NewMessageProvider(partitions []int, _ []int64) (kafka.MessageProvider, error) {
	l.committedOffsetsLock.Lock()
	defer l.committedOffsetsLock.Unlock()
	msgs := make(chan *kafka.Message, l.bufferSize)
	offsets := make([]int64, len(partitions))
	for i, partitionID := range partitions {
		offsets[i] = l.committedOffsets[int32(partitionID)] + 1
	}
	rnd := rand.New(rand.NewSource(time.Now().UTC().UnixNano()))
	msgGen, err := l.getMessageGenerator(l.messageGeneratorName)
	if err != nil {
		return nil, err
	}
	mp := &MessageProvider{
		factory:               l,
		msgs:                  msgs,
		partitions:            partitions,
		numPartitions:         len(partitions),
		offsets:               offsets,
		uniqueIDsPerPartition: l.uniqueIDsPerPartition,
		maxMessages:           l.maxMessagesPerConsumer,
		rnd:                   rnd,
		msgGenerator:          msgGen,
		deliveredOffsets:      map[int32]int64{},
	}
	l.messageProviders = append(l.messageProviders, mp)
	return mp, nil
}

func (l *MessageProviderFactory) NewMessageProducer(int, time.Duration, time.Duration) (kafka.MessageProducer, error) {
	panic("not implemented")
}

func (l *MessageProviderFactory) PartitionCount() (int, error) {
	return l.partitionCount, nil
}

// CommittedOffsets returns a copy of the latest offsets committed through any of the factory's providers
func (l *MessageProviderFactory) CommittedOffsets() map[int32]int64 {
	l.committedOffsetsLock.Lock()
	defer l.committedOffsetsLock.Unlock()
	offsets := make(map[int32]int64, len(l.committedOffsets))
	for partition, offset := range l.committedOffsets {
		offsets[partition] = offset
	}
	return offsets
}

func (l *MessageProviderFactory) getMessageGenerator(name string) (messageGenerator, error) {
	switch name {
	case "simple":
		return &simpleGenerator{}, nil
	case "payments":
		return &paymentsGenerator{uniqueIDsPerPartition: l.uniqueIDsPerPartition}, nil
	default:
		return nil, errors.Errorf("unknown message generator name %s", name)
	}
}

type messageGenerator interface {
	generateMessage(partition int32, offset int64, rnd *rand.Rand) (*kafka.Message, error)
}

// simpleGenerator produces small JSON messages with a sequential id
type simpleGenerator struct {
}

func (s *simpleGenerator) generateMessage(partition int32, offset int64, _ *rand.Rand) (*kafka.Message, error) {
	key := []byte(fmt.Sprintf("key-%d-%d", partition, offset))
	value := []byte(fmt.Sprintf(`{"id":%d,"partition":%d}`, offset, partition))
	return &kafka.Message{
		PartInfo: kafka.PartInfo{
			PartitionID: partition,
			Offset:      offset,
		},
		TimeStamp: time.Now(),
		Key:       key,
		Value:     value,
	}, nil
}

// paymentsGenerator produces randomized payment records with a bounded customer id space so output files
// exercise all the field types the format writers handle
type paymentsGenerator struct {
	uniqueIDsPerPartition int64
}

var paymentTypes = []string{"btc", "p2p", "dash"}
var currencies = []string{"gbp", "usd", "eur", "aud"}

func (p *paymentsGenerator) generateMessage(partition int32, offset int64, rnd *rand.Rand) (*kafka.Message, error) {
	customerID := rnd.Int63n(p.uniqueIDsPerPartition)
	paymentID := fmt.Sprintf("payment-%d-%d", partition, offset)
	value := []byte(fmt.Sprintf(`{"payment_id":"%s","customer_id":%d,"payment_type":"%s","currency":"%s","amount":%d.%02d,"fraud":%t}`,
		paymentID, customerID, paymentTypes[rnd.Intn(len(paymentTypes))], currencies[rnd.Intn(len(currencies))],
		rnd.Intn(10000), rnd.Intn(100), rnd.Intn(100) == 0))
	return &kafka.Message{
		PartInfo: kafka.PartInfo{
			PartitionID: partition,
			Offset:      offset,
		},
		TimeStamp: time.Now(),
		Key:       []byte(paymentID),
		Value:     value,
	}, nil
}

type MessageProvider struct {
	factory               *MessageProviderFactory
	msgs                  chan *kafka.Message
	running               atomic.Bool
	numPartitions         int
	partitions            []int
	offsets               []int64
	sequence              int64
	uniqueIDsPerPartition int64
	maxMessages           int64
	msgGenerator          messageGenerator
	rnd                   *rand.Rand
	msgLock               sync.Mutex
	deliveredOffsets      map[int32]int64
}

func (l *MessageProvider) GetMessage(pollTimeout time.Duration) (*kafka.Message, error) {
	select {
	case msg := <-l.msgs:
		if msg == nil {
			// Messages channel was closed - probably max number of configured messages was exceeded
			// In this case we don't want to busy loop, so we introduce a delay
			time.Sleep(pollTimeout)
		} else {
			l.msgLock.Lock()
			l.deliveredOffsets[msg.PartInfo.PartitionID] = msg.PartInfo.Offset
			l.msgLock.Unlock()
		}
		return msg, nil
	case <-time.After(pollTimeout):
		return nil, nil
	}
}

func (l *MessageProvider) CommitOffsets(offsets map[int32]int64) error {
	l.factory.committedOffsetsLock.Lock()
	defer l.factory.committedOffsetsLock.Unlock()
	for partition, offset := range offsets {
		l.factory.committedOffsets[partition] = offset
	}
	return nil
}

func (l *MessageProvider) SeekTo(int32, int64) error {
	// the load client generates valid data so the sink never needs to rewind it
	return errors.Errorf("load client does not support seek")
}

func (l *MessageProvider) Stop() error {
	l.msgLock.Lock()
	defer l.msgLock.Unlock()
	l.running.Store(false)
	return nil
}

func (l *MessageProvider) Start() error {
	l.running.Store(true)
	common.Go(l.genLoop)
	return nil
}

func (l *MessageProvider) genLoop() {
	var msgCount int64
	var msg *kafka.Message
	for l.running.Load() && msgCount < l.maxMessages {
		if msg == nil {
			var err error
			msg, err = l.genMessage()
			if err != nil {
				log.Errorf("failed to generate message %+v", err)
				return
			}
		}
		select {
		case l.msgs <- msg:
			msgCount++
			msg = nil
		case <-time.After(produceTimeout):
		}
	}
	close(l.msgs)
}

func (l *MessageProvider) genMessage() (*kafka.Message, error) {
	index := l.sequence % int64(l.numPartitions)
	partition := l.partitions[index]
	offset := l.offsets[index]

	msg, err := l.msgGenerator.generateMessage(int32(partition), offset, l.rnd)
	if err != nil {
		return nil, err
	}
	l.offsets[index]++
	l.sequence++

	return msg, nil
}
