package consumer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/spirit-labs/strata/common"
	"github.com/spirit-labs/strata/kafka"
	log "github.com/spirit-labs/strata/logger"
	"github.com/spirit-labs/strata/sink"
)

/*
Consumer drives one sink task from one kafka topic. It owns a message provider assigned every
partition of the topic, gathers polled messages into batches for the task, and commits consumer
offsets only after the task confirms the records are durably stored.

Offsets committed to kafka name the next offset to consume, one past the last stored record. They are
an optimization, not the source of truth - on startup the task re-derives the stored offsets from the
object store and the consumer resumes from those, so a crash between storing a file and committing
its offsets only re-reads records the task then drops as duplicates.
*/
type Consumer struct {
	lock        sync.Mutex
	started     bool
	conf        Conf
	task        *sink.Task
	msgClient   kafka.MessageClient
	msgProvider kafka.MessageProvider
	running     atomic.Bool
	stopWG      sync.WaitGroup
	msgBatch    []*kafka.Message
	toCommit    map[int32]int64
	lastCommit  time.Time
}

func NewConsumer(conf Conf, task *sink.Task, msgClient kafka.MessageClient) (*Consumer, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &Consumer{
		conf:      conf,
		task:      task,
		msgClient: msgClient,
		toCommit:  map[int32]int64{},
	}, nil
}

// Start starts the task, recovers the stored offset for every partition of the topic and begins
// consuming from there
func (c *Consumer) Start() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.started {
		return nil
	}
	if err := c.task.Start(); err != nil {
		return err
	}
	partitionCount, err := c.msgClient.PartitionCount()
	if err != nil {
		return err
	}
	partitions := make([]int, partitionCount)
	partitionIDs := make([]int32, partitionCount)
	for i := 0; i < partitionCount; i++ {
		partitions[i] = i
		partitionIDs[i] = int32(i)
	}
	resumeOffsets, err := c.task.Open(partitionIDs)
	if err != nil {
		return err
	}
	startOffsets := make([]int64, partitionCount)
	for i, partitionID := range partitionIDs {
		// -1 means nothing stored yet, the provider falls back to its configured start position
		startOffsets[i] = resumeOffsets[partitionID]
	}
	msgProvider, err := c.msgClient.NewMessageProvider(partitions, startOffsets)
	if err != nil {
		return err
	}
	if err := msgProvider.Start(); err != nil {
		return err
	}
	c.msgProvider = msgProvider
	c.lastCommit = time.Now()
	c.running.Store(true)
	c.stopWG.Add(1)
	common.Go(c.pollLoop)
	c.started = true
	return nil
}

// Stop flushes everything buffered, commits the final offsets and shuts the consumer down. Flush and
// commit failures are logged, not returned - whatever did not reach the store will be redelivered on
// the next start
func (c *Consumer) Stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.started {
		return nil
	}
	c.running.Store(false)
	c.stopWG.Wait()
	if err := c.task.Flush(); err != nil {
		log.Warnf("sink %s: failed to flush on shutdown: %v", c.task.TopicName(), err)
	} else if err := c.commitOffsets(); err != nil {
		log.Warnf("sink %s: failed to commit offsets on shutdown: %v", c.task.TopicName(), err)
	}
	if err := c.msgProvider.Stop(); err != nil {
		log.Warnf("sink %s: failed to stop message provider: %v", c.task.TopicName(), err)
	}
	if err := c.task.Stop(); err != nil {
		return err
	}
	c.started = false
	return nil
}

func (c *Consumer) pollLoop() {
	defer common.StrataPanicHandler()
	defer c.stopWG.Done()
	for c.running.Load() {
		batch, err := c.getBatch()
		if err != nil {
			log.Errorf("sink %s: failed to poll messages, consumer stopping: %v", c.task.TopicName(), err)
			c.running.Store(false)
			return
		}
		rolledBack, err := c.processBatch(batch)
		if err != nil {
			log.Errorf("sink %s: failed to process batch, consumer stopping: %v", c.task.TopicName(), err)
			c.running.Store(false)
			return
		}
		if err := c.maybeCommitOffsets(); err != nil {
			// retried on the next interval
			log.Warnf("sink %s: failed to commit offsets: %v", c.task.TopicName(), err)
		}
		if rolledBack && !c.retryPause() {
			return
		}
	}
}

// getBatch polls until the poll timeout passes or the batch is full. The provider returns single
// messages, the task is more efficient handling them in batches
func (c *Consumer) getBatch() ([]*kafka.Message, error) {
	deadline := time.Now().Add(c.conf.PollTimeout)
	c.msgBatch = c.msgBatch[:0]
	for len(c.msgBatch) < c.conf.MaxPollMessages {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		msg, err := c.msgProvider.GetMessage(remaining)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if msg == nil {
			break
		}
		c.msgBatch = append(c.msgBatch, msg)
	}
	return c.msgBatch, nil
}

// processBatch hands the batch to the task, replaying as long as failures are recoverable. An empty
// batch is still put so idle partitions keep flushing. The bool reports whether any partition was
// rewound, the poll loop pauses before the seeked redelivery so a poison message cannot spin it.
// Returns an error only when the consumer cannot make progress
func (c *Consumer) processBatch(batch []*kafka.Message) (bool, error) {
	rolledBack := false
	for {
		err := c.task.Put(batch)
		if err == nil {
			c.recordDelivered(batch)
			return rolledBack, nil
		}
		serr, ok := sink.AsError(err)
		if !ok || serr.Kind == sink.KindConfiguration {
			return rolledBack, err
		}
		if serr.RollBack() {
			// the task has already discarded the affected partitions' buffers - rewind those
			// partitions to their stored offsets and drop their part of the batch, the rest of the
			// batch is replayed. Replayed messages the task already buffered are dropped as
			// duplicates
			remaining, err := c.rewindPartitions(batch, serr.Partitions)
			if err != nil {
				return true, err
			}
			batch = remaining
			rolledBack = true
			continue
		}
		// storage failure - the task kept its buffers, replay the same batch after a pause
		log.Warnf("sink %s: transient failure writing batch, retrying in %s: %v", c.task.TopicName(),
			c.conf.RetryInterval, err)
		if !c.retryPause() {
			return rolledBack, nil
		}
	}
}

// rewindPartitions seeks the affected partitions back to their stored offsets and strips their
// messages out of the batch - the seek redelivers them
func (c *Consumer) rewindPartitions(batch []*kafka.Message, affected []sink.TopicPartition) ([]*kafka.Message, error) {
	partitionIDs := make([]int32, len(affected))
	affectedSet := make(map[int32]struct{}, len(affected))
	for i, tp := range affected {
		partitionIDs[i] = tp.Partition
		affectedSet[tp.Partition] = struct{}{}
	}
	resumeOffsets, err := c.task.Open(partitionIDs)
	if err != nil {
		return nil, err
	}
	for partitionID, offset := range resumeOffsets {
		if offset < 0 {
			// nothing stored - replay the partition from the start
			offset = 0
		}
		if err := c.msgProvider.SeekTo(partitionID, offset); err != nil {
			return nil, errors.WithStack(err)
		}
		log.Warnf("sink %s: rolled back partition %d, replaying from offset %d", c.task.TopicName(),
			partitionID, offset)
	}
	var remaining []*kafka.Message
	for _, msg := range batch {
		if _, ok := affectedSet[msg.PartInfo.PartitionID]; !ok {
			remaining = append(remaining, msg)
		}
	}
	return remaining, nil
}

func (c *Consumer) recordDelivered(batch []*kafka.Message) {
	for _, msg := range batch {
		c.toCommit[msg.PartInfo.PartitionID] = msg.PartInfo.Offset
	}
}

func (c *Consumer) maybeCommitOffsets() error {
	if time.Since(c.lastCommit) < c.conf.CommitInterval {
		return nil
	}
	return c.commitOffsets()
}

// commitOffsets commits one past the highest stored offset for each partition records have been
// delivered for. The task clamps the delivered offsets down to what is durably in the object store,
// so a stale entry after a rollback can never commit past the data
func (c *Consumer) commitOffsets() error {
	c.lastCommit = time.Now()
	if len(c.toCommit) == 0 {
		return nil
	}
	safe := c.task.PreCommit(c.toCommit)
	commit := make(map[int32]int64, len(safe))
	for partitionID, offset := range safe {
		if offset >= 0 {
			commit[partitionID] = offset + 1
		}
	}
	if len(commit) == 0 {
		return nil
	}
	if err := c.msgProvider.CommitOffsets(commit); err != nil {
		return errors.WithStack(err)
	}
	log.Debugf("sink %s: committed offsets %v", c.task.TopicName(), commit)
	return nil
}

// retryPause sleeps for the retry interval, returning false early if the consumer is stopping
func (c *Consumer) retryPause() bool {
	deadline := time.Now().Add(c.conf.RetryInterval)
	for c.running.Load() {
		if !time.Now().Before(deadline) {
			return true
		}
		time.Sleep(1 * time.Millisecond)
	}
	return false
}
