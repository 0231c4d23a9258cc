package agent

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/spirit-labs/strata/consumer"
	"github.com/spirit-labs/strata/kafka"
	"github.com/spirit-labs/strata/kafka/load"
	"github.com/spirit-labs/strata/metrics"
	"github.com/spirit-labs/strata/objstore"
	"github.com/spirit-labs/strata/objstore/dev"
	"github.com/spirit-labs/strata/objstore/minio"
	"github.com/spirit-labs/strata/sink"
)

// Agent hosts one sink per configured topic. Each sink is a consumer pulling messages from kafka
// and a task writing them as files to the object store. All sinks share the object store client
// and the metrics server
type Agent struct {
	lock          sync.Mutex
	cfg           Conf
	started       bool
	objStore      objstore.Client
	metricsServer *metrics.Server
	consumers     []*consumer.Consumer
}

func NewAgent(cfg Conf) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	objStore, err := createObjStore(cfg)
	if err != nil {
		return nil, err
	}
	clientFactory, err := messageClientFactory(cfg.KafkaClientType)
	if err != nil {
		return nil, err
	}
	return NewAgentWithClients(cfg, objStore, clientFactory)
}

// NewAgentWithClients creates an agent with the given object store client and kafka client
// factory instead of the configured ones. Tests use it to run against in memory fakes
func NewAgentWithClients(cfg Conf, objStore objstore.Client, clientFactory kafka.ClientFactory) (*Agent, error) {
	agent := &Agent{
		cfg:           cfg,
		objStore:      objStore,
		metricsServer: metrics.NewServer(cfg.MetricsBind, !cfg.MetricsEnabled),
	}
	for i := range cfg.SinkConfs {
		task, err := sink.NewTask(cfg.SinkConfs[i], objStore)
		if err != nil {
			return nil, err
		}
		msgClient, err := clientFactory(cfg.SinkConfs[i].TopicName, cfg.KafkaProps)
		if err != nil {
			return nil, err
		}
		cons, err := consumer.NewConsumer(cfg.ConsumerConf, task, msgClient)
		if err != nil {
			return nil, err
		}
		agent.consumers = append(agent.consumers, cons)
	}
	return agent, nil
}

func createObjStore(cfg Conf) (objstore.Client, error) {
	switch cfg.ObjStoreType {
	case DevObjectStoreType:
		return dev.NewInMemStore(0), nil
	case MinioObjectStoreType:
		return minio.NewMinioClient(cfg.MinioConf), nil
	default:
		return nil, errors.Errorf("invalid object store type %s", cfg.ObjStoreType)
	}
}

func messageClientFactory(clientType string) (kafka.ClientFactory, error) {
	switch clientType {
	case ConfluentClientType:
		return kafka.NewMessageProviderFactory, nil
	case LoadClientType:
		return load.NewMessageProviderFactory, nil
	default:
		return nil, errors.Errorf("invalid kafka client type %s", clientType)
	}
}

func (a *Agent) Start() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.started {
		return nil
	}
	if err := a.objStore.Start(); err != nil {
		return err
	}
	if err := a.metricsServer.Start(); err != nil {
		return err
	}
	for _, cons := range a.consumers {
		if err := cons.Start(); err != nil {
			return err
		}
	}
	a.started = true
	return nil
}

func (a *Agent) Stop() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if !a.started {
		return nil
	}
	for _, cons := range a.consumers {
		if err := cons.Stop(); err != nil {
			return err
		}
	}
	if err := a.metricsServer.Stop(); err != nil {
		return err
	}
	if err := a.objStore.Stop(); err != nil {
		return err
	}
	a.started = false
	return nil
}

func (a *Agent) Conf() Conf {
	return a.cfg
}
