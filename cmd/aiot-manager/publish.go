package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cnehgus0620/aiot-manager/internal/civil"
	"github.com/cnehgus0620/aiot-manager/internal/discovery"
	"github.com/cnehgus0620/aiot-manager/internal/publisher"
)

var publishMode string

func init() {
	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "aggregate stored readings into 5-minute windows and publish them",
		RunE:  runPublish,
	}
	publishCmd.Flags().StringVar(&publishMode, "mode", "drain",
		"once publishes every elapsed window and exits, drain polls forever")
	Command.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	if publishMode != "once" && publishMode != "drain" {
		return errors.Errorf("unknown mode %q, expected once or drain", publishMode)
	}

	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := rt.newTransport(rt.application.MQTT.ClientIDPrefix + "-publish")
	if err != nil {
		return err
	}
	if err = client.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := client.Disconnect(); err != nil {
			rt.logger.Warnw("failed to disconnect", "err", err)
		}
	}()

	publish := rt.application.Publish
	withOptions := []publisher.WithOptions{
		publisher.WithTopic(publish.Topic),
		publisher.WithQoS(byte(publish.QoS)),
		publisher.WithRoom(publish.Room),
		publisher.WithCivilZone(rt.civilZone),
		publisher.WithPollInterval(publish.PollInterval),
	}
	if fallback, err := newFallback(rt); err != nil {
		return err
	} else if fallback != nil {
		withOptions = append(withOptions, publisher.WithFallback(fallback))
	}

	loop, err := publisher.NewLoop(rt.logger, rt.scope.SubScope("publish"), rt.store, client, withOptions...)
	if err != nil {
		return err
	}
	if err = loop.Run(ctx, publishMode == "once"); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	rt.logger.Infof("shutting down")
	return nil
}

// newFallback builds the S3 partition discovery when the s3 section is
// configured; without it the loop resumes from the checkpoint alone.
func newFallback(rt *runtime) (publisher.Fallback, error) {
	cfg := rt.application.S3
	if cfg == nil {
		return nil, nil
	}
	zone, err := civil.LoadZone(cfg.PartitionZone)
	if err != nil {
		return nil, err
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Region)})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create aws session")
	}
	return discovery.New(s3.New(sess), cfg.Bucket, cfg.Prefix, zone, rt.logger), nil
}
