package sink

import (
	"fmt"
	"path"
	"regexp"
	"strconv"

	"github.com/spirit-labs/strata/compress"
	"github.com/spirit-labs/strata/format"
)

// Object keys follow the layout
//
//	<data prefix>/<partitioner path>/<topic>-<partition>-<start offset>-<end offset>.<ext>[.<compression ext>]
//
// The partition is zero padded to 5 digits and offsets to 20 so the keys for a partition sort in offset
// order. The offset range in the file name is everything recovery needs - the committed offset for a
// partition is the highest end offset over its keys, object bodies are never read. The partitioner path
// always starts with the topic name, so one listing of <data prefix>/<topic>/ covers every file the
// topic's partitioner can have produced
func objectKey(dataPrefix string, filePath string, tp TopicPartition, startOffset int64, endOffset int64,
	formatType format.Type, compression compress.CompressionType) string {
	key := fmt.Sprintf("%s/%s/%s-%05d-%020d-%020d.%s", dataPrefix, filePath, tp.Topic, tp.Partition,
		startOffset, endOffset, formatType.FileExtension())
	if !formatType.UsesInternalCompression() && compression != compress.CompressionTypeNone {
		key = key + "." + compression.FileExtension()
	}
	return key
}

func topicListPrefix(dataPrefix string, topic string) string {
	return dataPrefix + "/" + topic + "/"
}

var objectNameRegex = regexp.MustCompile(`^(.+)-(\d{5})-(\d{20})-(\d{20})\.[^.]+(?:\.[^.]+)?$`)

// parseObjectKey extracts the topic partition and the offset range encoded in an object key. ok is
// false if the name does not follow the layout - recovery ignores such objects
func parseObjectKey(key string) (tp TopicPartition, startOffset int64, endOffset int64, ok bool) {
	groups := objectNameRegex.FindStringSubmatch(path.Base(key))
	if groups == nil {
		return TopicPartition{}, 0, 0, false
	}
	partition, err := strconv.ParseInt(groups[2], 10, 32)
	if err != nil {
		return TopicPartition{}, 0, 0, false
	}
	start, err := strconv.ParseInt(groups[3], 10, 64)
	if err != nil {
		return TopicPartition{}, 0, 0, false
	}
	end, err := strconv.ParseInt(groups[4], 10, 64)
	if err != nil {
		return TopicPartition{}, 0, 0, false
	}
	return TopicPartition{Topic: groups[1], Partition: int32(partition)}, start, end, true
}
