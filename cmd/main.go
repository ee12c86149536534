package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"xchg/cmd/test"
	"xchg/config"
	"xchg/core"
	"xchg/pkg/logging"

	log "github.com/sirupsen/logrus"
)

const defaultAddr = ":3000"

func main() {
	printSchema := flag.Bool("schema", false, "print the configuration JSON schema and exit")
	smoke := flag.String("smoke", "", "run read-only calls against the given exchange id and exit")
	flag.Parse()

	if *printSchema {
		out, err := json.MarshalIndent(config.Schema(), "", "  ")
		if err != nil {
			log.Fatalf("fail to generate schema: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	env := config.Env
	if err := logging.Configure(logging.Config{}, env.EnvName); err != nil {
		log.Fatalf("fail to configure log: %v", err)
	}

	// init context for graceful shutdown
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// load config
	cfg, err := config.LoadConfig(env.EnvName, env.YamlMode)
	if err != nil {
		log.Fatalf("fail to load config: %v", err)
	}
	if err := logging.Configure(cfg.Logging, env.EnvName); err != nil {
		log.Fatalf("fail to configure log: %v", err)
	}

	// trap signal for graceful shutdown
	setupSignalHandler(cancel)

	// 📊 core: exchange adapters
	if err := core.Bootstrap(rootCtx, *cfg); err != nil {
		core.CloseExchanges()
		log.Fatalf("fail to bootstrap app: %v", err)
	}
	defer core.CloseExchanges()

	if *smoke != "" {
		if err := test.RunTest(rootCtx, *smoke); err != nil {
			log.Errorf("smoke test failed: %v", err)
			core.CloseExchanges()
			os.Exit(1)
		}
		return
	}

	// adapters are closed only once Run has returned
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := core.Run(rootCtx); err != nil {
			log.Errorf("Runtime error: %v", err)
		}
	}()

	// 🌩️ fiber: rest API module
	fApp := core.SetupFiberApp()
	go func() {
		<-rootCtx.Done()
		core.ShutdownFiberApp(fApp)
	}()
	addr := cfg.Server.Addr
	if addr == "" {
		addr = defaultAddr
	}
	if err := fApp.Listen(addr); err != nil {
		log.Errorf("fail to serve on %v: %v", addr, err)
	}
	cancel()
	<-runDone
	log.Info("👋 shut down")
}

func setupSignalHandler(cancel context.CancelFunc) {
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigC
		log.Info("🚩 received shutdown signal")
		cancel()
	}()
}
