package main

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	konghcl "github.com/alecthomas/kong-hcl/v2"
	"github.com/spirit-labs/strata/common"
	"github.com/spirit-labs/strata/kafka"
	log "github.com/spirit-labs/strata/logger"
)

// Produces randomized payment records to a kafka topic, round robin across its partitions. Used for
// smoke testing a running agent end to end
type arguments struct {
	Topic            string     `help:"topic to produce to" default:"payments"`
	BootstrapServers string     `help:"comma separated list of kafka brokers to produce to" default:"localhost:9092"`
	NumMessages      int        `help:"total number of messages to produce" default:"1000"`
	BatchSize        int        `help:"number of messages sent per batch" default:"100"`
	IntervalMs       int        `help:"pause in ms between batches" default:"0"`
	Log              log.Config `help:"configuration for the logger" embed:"" prefix:"log-"`
}

func main() {
	if err := run(); err != nil {
		log.Errorf("failed to run datagen: %v", err)
	}
}

func run() error {
	defer common.StrataPanicHandler()
	cfg := arguments{}
	parser, err := kong.New(&cfg, kong.Configuration(konghcl.Loader))
	if err != nil {
		return err
	}
	var args []string
	for _, arg := range os.Args[1:] {
		arg = strings.TrimSpace(arg)
		if arg != "" {
			args = append(args, arg)
		}
	}
	_, err = parser.Parse(args)
	if err != nil {
		return err
	}
	if err := cfg.Log.Configure(); err != nil {
		return err
	}
	msgClient, err := kafka.NewMessageProviderFactory(cfg.Topic,
		map[string]string{"bootstrap.servers": cfg.BootstrapServers})
	if err != nil {
		return err
	}
	partitionCount, err := msgClient.PartitionCount()
	if err != nil {
		return err
	}
	producers := make([]kafka.MessageProducer, partitionCount)
	for i := 0; i < partitionCount; i++ {
		producer, err := msgClient.NewMessageProducer(i, 5*time.Second, 10*time.Second)
		if err != nil {
			return err
		}
		if err := producer.Start(); err != nil {
			return err
		}
		producers[i] = producer
	}
	defer func() {
		for _, producer := range producers {
			if err := producer.Stop(); err != nil {
				log.Warnf("failed to stop producer: %v", err)
			}
		}
	}()
	log.Infof("producing %d messages to topic %s across %d partitions", cfg.NumMessages, cfg.Topic,
		partitionCount)
	rnd := rand.New(rand.NewSource(time.Now().UTC().UnixNano()))
	sent := 0
	for sent < cfg.NumMessages {
		batchSize := cfg.BatchSize
		if remaining := cfg.NumMessages - sent; remaining < batchSize {
			batchSize = remaining
		}
		batch := make([]kafka.Message, batchSize)
		for i := range batch {
			batch[i] = generateMessage(rnd, sent+i)
		}
		if err := producers[(sent/cfg.BatchSize)%partitionCount].SendMessages(batch); err != nil {
			return err
		}
		sent += batchSize
		if cfg.IntervalMs > 0 {
			time.Sleep(time.Duration(cfg.IntervalMs) * time.Millisecond)
		}
	}
	log.Infof("produced %d messages to topic %s", sent, cfg.Topic)
	return nil
}

var paymentTypes = []string{"btc", "p2p", "dash"}
var currencies = []string{"gbp", "usd", "eur", "aud"}

func generateMessage(rnd *rand.Rand, sequence int) kafka.Message {
	paymentID := fmt.Sprintf("payment-%d", sequence)
	value := fmt.Sprintf(`{"payment_id":"%s","customer_id":%d,"payment_type":"%s","currency":"%s","amount":%d.%02d,"fraud":%t}`,
		paymentID, rnd.Int63n(100000), paymentTypes[rnd.Intn(len(paymentTypes))],
		currencies[rnd.Intn(len(currencies))], rnd.Intn(10000), rnd.Intn(100), rnd.Intn(100) == 0)
	return kafka.Message{
		TimeStamp: time.Now(),
		Key:       []byte(paymentID),
		Value:     []byte(value),
	}
}
