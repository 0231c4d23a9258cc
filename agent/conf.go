package agent

import (
	"github.com/pkg/errors"
	"github.com/spirit-labs/strata/consumer"
	"github.com/spirit-labs/strata/objstore/minio"
	"github.com/spirit-labs/strata/sink"
)

const (
	DevObjectStoreType   = "dev"
	MinioObjectStoreType = "minio"

	ConfluentClientType = "confluent"
	LoadClientType      = "load"

	DefaultObjectStoreType = MinioObjectStoreType
	DefaultKafkaClientType = ConfluentClientType
	DefaultMetricsBind     = "localhost:9102"
)

// Conf is the full agent configuration. The agent runs one sink per entry in SinkConfs, all
// consuming through the same kind of kafka client and writing to the same object store
type Conf struct {
	SinkConfs       []sink.Conf
	ConsumerConf    consumer.Conf
	KafkaClientType string
	KafkaProps      map[string]string
	ObjStoreType    string
	MinioConf       minio.Conf
	MetricsBind     string
	MetricsEnabled  bool
}

func NewConf() Conf {
	return Conf{
		ConsumerConf:    consumer.NewConf(),
		KafkaClientType: DefaultKafkaClientType,
		ObjStoreType:    DefaultObjectStoreType,
		MetricsBind:     DefaultMetricsBind,
	}
}

func (c *Conf) Validate() error {
	if len(c.SinkConfs) == 0 {
		return errors.Errorf("invalid value for topics must contain at least one topic")
	}
	topics := map[string]struct{}{}
	for i := range c.SinkConfs {
		if err := c.SinkConfs[i].Validate(); err != nil {
			return err
		}
		topicName := c.SinkConfs[i].TopicName
		if _, exists := topics[topicName]; exists {
			return errors.Errorf("invalid value for topics duplicate topic %s", topicName)
		}
		topics[topicName] = struct{}{}
	}
	if err := c.ConsumerConf.Validate(); err != nil {
		return err
	}
	if c.KafkaClientType != ConfluentClientType && c.KafkaClientType != LoadClientType {
		return errors.Errorf("invalid value for kafka-client-type must be one of confluent, load")
	}
	if c.ObjStoreType != DevObjectStoreType && c.ObjStoreType != MinioObjectStoreType {
		return errors.Errorf("invalid value for obj-store-type must be one of dev, minio")
	}
	if c.MetricsEnabled && c.MetricsBind == "" {
		return errors.Errorf("invalid value for metrics-bind must be specified when metrics are enabled")
	}
	return nil
}
