// Command simulator plays technicians answering job alerts. It subscribes
// to the MQTT alert topics and accepts, rejects or ignores each offer
// through the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"

	"github.com/kilianp07/homefix/infra/logger"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var cfg Config
	cmd := &cobra.Command{
		Use:          "simulator",
		Short:        "Simulate technicians answering job offers",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			level := "info"
			if cfg.Verbose {
				level = "debug"
			}
			if err := logger.Setup(logger.Options{Level: level}); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	f.StringVar(&cfg.TopicPrefix, "prefix", "homefix", "MQTT topic prefix")
	f.StringVar(&cfg.APIURL, "api", "http://localhost:8080", "homefix API base URL")
	f.StringSliceVar(&cfg.Technicians, "technicians", nil, "technician ids to answer for (default all)")
	f.DurationVar(&cfg.Delay, "delay", 2*time.Second, "response delay")
	f.Float64Var(&cfg.AcceptRate, "accept-rate", 0.6, "probability of accepting an offer")
	f.Float64Var(&cfg.RejectRate, "reject-rate", 0.2, "probability of rejecting an offer")
	f.Int64Var(&cfg.Seed, "seed", time.Now().UnixNano(), "random seed")
	f.StringVar(&cfg.Auth.TokenURL, "token-url", "", "OAuth2 token endpoint; enables client credentials auth")
	f.StringVar(&cfg.Auth.ClientID, "client-id", "", "OAuth2 client id")
	f.StringVar(&cfg.Auth.ClientSecret, "client-secret", "", "OAuth2 client secret")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func run(ctx context.Context, cfg Config) error {
	log := logger.New("simulator")
	api := NewHTTPClient(cfg.APIURL)
	if cfg.Auth.TokenURL != "" {
		api = api.WithClientCredentials(ctx, cfg.Auth)
	}
	responder := NewResponder(
		api,
		NewRandomResponse(cfg.AcceptRate, cfg.RejectRate, cfg.Seed),
		cfg.Delay, cfg.Technicians, logger.New("technician"),
	)

	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(fmt.Sprintf("homefix-sim-%d", os.Getpid()))
	opts.AutoReconnect = true
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect: %w", token.Error())
	}
	defer cli.Disconnect(250)

	topic := cfg.TopicPrefix + "/technicians/+/alerts"
	token := cli.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		responder.Handle(ctx, m.Topic(), m.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	log.Infof("listening on %s", topic)
	<-ctx.Done()
	responder.Wait()
	return nil
}
