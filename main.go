package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	glog "github.com/golang/glog"

	agent "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/agent"
	cli "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/cli"
	config "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/config"
	controller "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/controller"
	ofrest "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/ofrest"
	trainer "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/trainer"
)

var (
	configPath = flag.String("config", "", "Path to the YAML config; defaults apply when empty.")
	checkpoint = flag.String("checkpoint", "", "Agent checkpoint to load at startup.")
	train      = flag.Bool("train", false, "Run the training loop after startup.")
	noShell    = flag.Bool("no_shell", false, "Run headless without the interactive shell.")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			glog.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	dqn := agent.NewDQNAgent(cfg)
	if *checkpoint != "" {
		if err := dqn.Load(*checkpoint); err != nil {
			glog.Fatalf("Failed to load checkpoint %s: %v", *checkpoint, err)
		}
		glog.Infof("Resumed agent from %s", *checkpoint)
	}

	ofctl := &ofrest.OfctlHandler{}
	if err := ofctl.EstablishConnection(cfg.Network.RedisAddr, cfg.Network.RedisPassword, cfg.Network.RedisDB); err != nil {
		glog.Fatalf("Failed to reach the switch control plane at %s: %v", cfg.Network.RedisAddr, err)
	}
	defer ofctl.CloseConnection()

	lb := controller.NewLBController(cfg, ofctl, dqn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := ofctl.RunEventLoop(ctx, lb); err != nil && ctx.Err() == nil {
			glog.Fatalf("Switch event loop died: %v", err)
		}
	}()
	go lb.RunStatsLoop(ctx)

	rest := ofrest.NewServer(cfg.Network.RestListenAddr, lb, dqn)
	go func() {
		if err := rest.Start(); err != nil {
			glog.Fatalf("REST surface died: %v", err)
		}
	}()
	defer rest.Shutdown(context.Background())

	if *train {
		go func() {
			t := trainer.NewTrainer(cfg, lb, dqn, ofctl)
			if err := t.Run(ctx); err != nil && ctx.Err() == nil {
				glog.Errorf("Training loop failed: %v", err)
			}
		}()
	}

	if *noShell {
		<-ctx.Done()
		return
	}

	// The shell talks to the controller through its own REST surface.
	base := cfg.Network.RestListenAddr
	if strings.HasPrefix(base, ":") {
		base = "127.0.0.1" + base
	}
	e := cli.NewExecutor(ofrest.NewClient(fmt.Sprintf("http://%s", base), 5*time.Second))

	p := prompt.New(
		e.Execute,
		cli.Complete,
		prompt.OptionPrefix(">>> "),
		prompt.OptionInputTextColor(prompt.Blue),
	)

	p.Run()
}
