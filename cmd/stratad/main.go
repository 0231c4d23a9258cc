package main

import (
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	konghcl "github.com/alecthomas/kong-hcl/v2"
	"github.com/spirit-labs/strata/agent"
	"github.com/spirit-labs/strata/common"
	log "github.com/spirit-labs/strata/logger"
)

type arguments struct {
	Conf agent.CommandConf `embed:""`
	Log  log.Config        `help:"configuration for the logger" embed:"" prefix:"log-"`
}

func main() {
	if err := run(); err != nil {
		log.Errorf("failed to run strata agent: %v", err)
	}
}

func run() error {
	defer common.StrataPanicHandler()
	cfg := arguments{}
	parser, err := kong.New(&cfg, kong.Configuration(konghcl.Loader))
	if err != nil {
		return err
	}
	// Remove any empty args - as this can otherwise cause parser to fail with a non-descriptive error, and users
	// often have an extra space at end of command line
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
	ag, err := agent.CreateAgentFromCommandConf(cfg.Conf)
	if err != nil {
		return err
	}
	if err := ag.Start(); err != nil {
		return err
	}
	log.Infof("strata agent is running")
	// Wait for the agent to stop - and set up signal handler to cleanly stop it when SIGINT or SIGTERM occurs
	swg := sync.WaitGroup{}
	swg.Add(1)
	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		sig := <-signals
		log.Warnf("signal: '%s' received. strata agent will be stopped", sig.String())
		// hard stop if agent Stop() hangs
		tz := time.AfterFunc(30*time.Second, func() {
			common.DumpStacks()
			log.Warnf("agent stop did not complete in time. system will exit")
			swg.Done()
			os.Exit(1)
		})
		if err := ag.Stop(); err != nil {
			log.Warnf("failed to stop strata agent: %v", err)
		}
		log.Infof("strata agent is stopped")
		tz.Stop()
		swg.Done()
	}()
	swg.Wait()
	return nil
}
