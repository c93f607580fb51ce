package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cnehgus0620/aiot-manager/internal/ingest"
	"github.com/cnehgus0620/aiot-manager/internal/reading"
)

func init() {
	Command.AddCommand(&cobra.Command{
		Use:   "ingest",
		Short: "subscribe to the raw sensor topic and store readings",
		RunE:  runIngest,
	})
}

func runIngest(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := rt.newTransport(rt.application.MQTT.ClientIDPrefix + "-ingest")
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

	limits := reading.Limits{
		DropNegative:    rt.application.Ingest.DropNegative,
		StrictPMAllZero: rt.application.Ingest.StrictPMAllZero,
		MaxPM:           rt.application.Ingest.MaxPM,
		MaxLux:          rt.application.Ingest.MaxLux,
	}
	service := ingest.NewService(rt.logger, rt.scope.SubScope("ingest"), rt.store,
		limits, rt.civilZone, rt.application.Ingest.KeepRejects)
	if err = service.Start(ctx, client, rt.application.Ingest.Topic, byte(rt.application.Ingest.QoS)); err != nil {
		return err
	}

	<-ctx.Done()
	rt.logger.Infof("shutting down")
	return nil
}
