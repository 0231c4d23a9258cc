package sink

import (
	"fmt"

	"github.com/spirit-labs/strata/format"
	"github.com/spirit-labs/strata/kafka"
	"github.com/spirit-labs/strata/objstore"
	"github.com/spirit-labs/strata/partitioner"
	"github.com/spirit-labs/strata/record"
)

// Task is the host facing surface of one sink. It converts consumed messages into records, routes them
// through the partitioner into the writer manager, and implements the rollback half of the commit
// protocol - when an operation fails with an error that demands rollback, the affected partitions are
// cleaned up before the error is surfaced, so the caller replays them from their committed offsets
type Task struct {
	conf        Conf
	manager     *Manager
	partitioner partitioner.Partitioner
	formatType  format.Type
}

func NewTask(conf Conf, objStore objstore.Client) (*Task, error) {
	manager, err := NewManager(conf, objStore)
	if err != nil {
		return nil, err
	}
	part, err := partitioner.New(partitioner.FromString(conf.PartitionerType), conf.TimePathFormat,
		conf.PartitionField)
	if err != nil {
		return nil, NewConfigurationError("%s", err.Error())
	}
	return &Task{
		conf:        conf,
		manager:     manager,
		partitioner: part,
		formatType:  format.FromString(conf.FileFormat),
	}, nil
}

func (t *Task) Start() error {
	return t.manager.Start()
}

func (t *Task) Stop() error {
	return t.manager.Stop()
}

// Open recovers committed offsets for the given partitions of the sink's topic and returns the offset
// to resume consuming at for each, -1 where the consumer should use its configured start position
func (t *Task) Open(partitions []int32) (map[int32]int64, error) {
	resume, err := t.manager.Open(t.topicPartitions(partitions))
	if err != nil {
		return nil, err
	}
	resumeOffsets := make(map[int32]int64, len(resume))
	for tp, offset := range resume {
		resumeOffsets[tp.Partition] = offset
	}
	return resumeOffsets, nil
}

// Put processes one batch: retry and rotation checks first, then each message in order, then the idle
// flush check if the batch was empty. On a rollback error the affected partitions have been cleaned up
// by the time Put returns - the caller must rewind them. On a storage error nothing is lost and the
// caller retries the same batch
func (t *Task) Put(msgs []*kafka.Message) error {
	if err := t.manager.RecommitPending(); err != nil {
		return t.maybeRollBack(err)
	}
	for _, msg := range msgs {
		if err := t.writeMessage(msg); err != nil {
			return t.maybeRollBack(err)
		}
	}
	if len(msgs) == 0 {
		if err := t.manager.CommitAllWritersIfFlushRequired(); err != nil {
			return t.maybeRollBack(err)
		}
	}
	return nil
}

// PreCommit clamps the offsets the caller wants to commit to what is durably stored, per partition
func (t *Task) PreCommit(offsets map[int32]int64) map[int32]int64 {
	tpOffsets := make(map[TopicPartition]int64, len(offsets))
	for partition, offset := range offsets {
		tpOffsets[TopicPartition{Topic: t.conf.TopicName, Partition: partition}] = offset
	}
	safe := t.manager.PreCommit(tpOffsets)
	safeOffsets := make(map[int32]int64, len(safe))
	for tp, offset := range safe {
		safeOffsets[tp.Partition] = offset
	}
	return safeOffsets
}

// Flush seals and stores everything buffered. Called before the final offset commit on shutdown
func (t *Task) Flush() error {
	return t.maybeRollBack(t.manager.Flush())
}

// ClosePartitions flushes and forgets the given partitions ahead of them being revoked
func (t *Task) ClosePartitions(partitions []int32) {
	t.manager.ClosePartitions(t.topicPartitions(partitions))
}

// CommittedOffset returns the committed offset for a partition of the sink's topic, or -1
func (t *Task) CommittedOffset(partition int32) int64 {
	return t.manager.CommittedOffset(TopicPartition{Topic: t.conf.TopicName, Partition: partition})
}

// TopicName returns the topic this task sinks
func (t *Task) TopicName() string {
	return t.conf.TopicName
}

func (t *Task) writeMessage(msg *kafka.Message) error {
	tp := TopicPartition{Topic: t.conf.TopicName, Partition: msg.PartInfo.PartitionID}
	rec, err := t.convertMessage(msg)
	if err != nil {
		return NewError(KindFormat,
			fmt.Sprintf("failed to convert message at offset %d for partition %s", msg.PartInfo.Offset, tp),
			err, tp)
	}
	filePath, err := t.partitioner.Path(tp.Topic, tp.Partition, rec)
	if err != nil {
		return NewError(KindFormat,
			fmt.Sprintf("failed to compute file path for message at offset %d for partition %s",
				msg.PartInfo.Offset, tp), err, tp)
	}
	return t.manager.Write(WriteKey{TP: tp, Path: filePath}, rec, msg.PartInfo.Offset)
}

// convertMessage maps a message value to the canonical record form. The raw format passes values
// through untouched, everything else parses them as JSON
func (t *Task) convertMessage(msg *kafka.Message) (*record.Record, error) {
	if t.formatType == format.TypeRaw {
		return record.FromBytes(msg.Value, msg.TimeStamp), nil
	}
	return record.FromJSON(msg.Value, msg.TimeStamp)
}

func (t *Task) maybeRollBack(err error) error {
	if err == nil {
		return nil
	}
	serr, ok := AsError(err)
	if !ok || !serr.RollBack() {
		return err
	}
	for _, tp := range serr.Partitions {
		t.manager.CleanUp(tp)
	}
	return err
}

func (t *Task) topicPartitions(partitions []int32) []TopicPartition {
	tps := make([]TopicPartition, len(partitions))
	for i, partition := range partitions {
		tps[i] = TopicPartition{Topic: t.conf.TopicName, Partition: partition}
	}
	return tps
}
