package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	lib "github.com/Skyrin/go-deploy"
	"github.com/Skyrin/go-deploy/artifact"
	"github.com/Skyrin/go-deploy/deploy"
	"github.com/Skyrin/go-deploy/kafka"
	kafka_aws_ec2 "github.com/Skyrin/go-deploy/kafka/aws/ec2"
	"github.com/Skyrin/go-deploy/paramstore"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	gokafka "github.com/segmentio/kafka-go"
)

const usage = `usage: deploy-migrate [migrate|status|version]

  migrate  fetch parameters, download artifacts, apply and journal migrations (default)
  status   log the latest journaled batch
  version  print the build version
`

func main() {
	cmd := "migrate"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	if cmd == "version" {
		sha, build := lib.Version()
		fmt.Printf("sha: %s, build: %s\n", sha, build)
		return
	}
	if cmd != "migrate" && cmd != "status" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, environ, err := deploy.LoadConfig(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cmd, cfg, environ); err != nil {
		log.Error().Err(err).Msgf("%s failed", cmd)
		stop()
		os.Exit(1)
	}
}

func setupLogger(cfg *deploy.Config) {
	if cfg.Dev {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func run(ctx context.Context, cmd string, cfg *deploy.Config, environ map[string]string) (err error) {
	sha, build := lib.Version()
	log.Info().Msgf("deploy-migrate %s, sha: %s, build: %s", cmd, sha, build)

	p := deploy.DeployerParam{
		Config:  cfg,
		Environ: environ,
	}

	if cfg.UsesAWS() {
		var opts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			opts = append(opts, config.WithRegion(cfg.AWSRegion))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return err
		}
		p.Params = paramstore.NewProviderFromConfig(awsCfg)
		p.Artifacts = artifact.NewStoreFromConfig(awsCfg)
	}

	if cmd == "status" {
		return deploy.NewDeployer(p).Status(ctx)
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub, err := newPublisher(ctx, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("result events disabled, failed to set up kafka")
		} else {
			p.Publisher = pub
			defer func() {
				if err := pub.Close(); err != nil {
					log.Warn().Err(err).Msg("failed to close kafka publisher")
				}
			}()
		}
	}

	_, err = deploy.NewDeployer(p).Run(ctx)
	return err
}

// newPublisher connects to the brokers, with MSK IAM auth unless running in
// dev mode
func newPublisher(ctx context.Context, cfg *deploy.Config) (pub *kafka.Publisher, err error) {
	connConf := kafka.ConnectionConfig{
		AddressList: cfg.KafkaBrokers,
	}

	if cfg.Dev {
		connConf.NoTLS = true
	} else if cfg.KafkaRegion != "" {
		sm, err := kafka_aws_ec2.NewSASLMechanism(ctx, kafka_aws_ec2.SASLMechanismConfig{
			Region: cfg.KafkaRegion,
		})
		if err != nil {
			return nil, err
		}
		connConf.SASLMechanism = sm
	}

	c, err := kafka.NewConn(connConf)
	if err != nil {
		return nil, err
	}

	if err := c.Ping(ctx); err != nil {
		return nil, err
	}

	if cfg.KafkaCreateTopic {
		if err := c.CreateTopics(ctx, gokafka.TopicConfig{
			Topic:             cfg.KafkaTopic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}); err != nil {
			log.Warn().Err(err).Msgf("failed to create topic %s", cfg.KafkaTopic)
		}
	}

	return kafka.NewPublisher(c, cfg.KafkaTopic), nil
}
