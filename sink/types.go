package sink

import (
	"fmt"
	"sort"
	"strings"
)

// TopicPartition identifies one partition of a topic
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (t TopicPartition) String() string {
	return fmt.Sprintf("%s-%d", t.Topic, t.Partition)
}

// CompareTopicPartitions orders topic partitions by topic name, then partition number
func CompareTopicPartitions(tp1 TopicPartition, tp2 TopicPartition) int {
	if c := strings.Compare(tp1.Topic, tp2.Topic); c != 0 {
		return c
	}
	return int(tp1.Partition) - int(tp2.Partition)
}

// SortTopicPartitions sorts the slice in place and returns it
func SortTopicPartitions(tps []TopicPartition) []TopicPartition {
	sort.Slice(tps, func(i, j int) bool {
		return CompareTopicPartitions(tps[i], tps[j]) < 0
	})
	return tps
}

// WriteKey identifies one logical output stream - all the records of a topic partition whose
// partitioner path is the same. Each open file belongs to exactly one write key
type WriteKey struct {
	TP TopicPartition
	// Path is the partitioner output the file is written under, relative to the data prefix
	Path string
}
