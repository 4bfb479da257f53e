// Package main provides the shapes binary entry point, a small
// interoperability demo speaking the ShapeType used by most DDS vendors'
// shapes demos. A published shape bounces around a 240x240 canvas.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dataflume/flumedds/dds"
	"github.com/dataflume/flumedds/qos"
	"github.com/dataflume/flumedds/rtps"
	"github.com/dataflume/flumedds/security"
)

// ShapeType matches the wire layout of the standard shapes demo type.
type ShapeType struct {
	Color     string
	X         int32
	Y         int32
	ShapeSize int32
}

// Key implements dds.Keyed. Shapes are keyed by color.
func (s ShapeType) Key() any { return s.Color }

const canvasSize = 240

type options struct {
	domain     uint16
	topic      string
	color      string
	bestEffort bool
	keystore   string
	keyPass    string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "shapes",
		Short: "DDS shapes interoperability demo",
		Long: `shapes publishes or subscribes to the ShapeType topic understood by
the shapes demos shipped with most DDS implementations. Run it against
another vendor's demo to check interoperability, or against itself.`,
	}
	cmd.PersistentFlags().Uint16Var(&opts.domain, "domain", 0, "DDS domain id")
	cmd.PersistentFlags().StringVarP(&opts.topic, "topic", "t", "Square",
		"Topic name (Square, Circle or Triangle)")
	cmd.PersistentFlags().StringVarP(&opts.color, "color", "c", "BLUE",
		"Shape color, used as the instance key")
	cmd.PersistentFlags().BoolVarP(&opts.bestEffort, "best-effort", "u", false,
		"Use best-effort instead of reliable endpoints")
	cmd.PersistentFlags().StringVar(&opts.keystore, "keystore", "",
		"Directory holding security documents with ROS 2 default names")
	cmd.PersistentFlags().StringVar(&opts.keyPass, "key-password", "",
		"Password for the private key in the keystore")

	cmd.AddCommand(publishCmd(opts), subscribeCmd(opts))
	return cmd
}

func openParticipant(opts *options) (*dds.DomainParticipant, error) {
	cfg := dds.DefaultParticipantConfig()
	cfg.DomainID = opts.domain
	cfg.EntityName = "shapes"
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	if opts.keystore != "" {
		files := security.WithROSDefaultNames(opts.keystore, opts.keyPass)
		cfg.Security = &files
	}
	return dds.NewParticipant(cfg)
}

func shapeQoS(bestEffort bool) qos.Policies {
	b := qos.NewBuilder().KeepLast(1)
	if bestEffort {
		b = b.BestEffort()
	} else {
		b = b.Reliable(rtps.DurationFromStd(100 * time.Millisecond))
	}
	return b.Build()
}

func publishCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "publish",
		Aliases: []string{"pub"},
		Short:   "Publish a bouncing shape",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(opts)
		},
	}
}

func runPublish(opts *options) error {
	dp, err := openParticipant(opts)
	if err != nil {
		return err
	}
	defer dp.Close()

	topic, err := dp.CreateTopic(opts.topic, "ShapeType", shapeQoS(opts.bestEffort))
	if err != nil {
		return err
	}
	publisher, err := dp.CreatePublisher(qos.Policies{})
	if err != nil {
		return err
	}
	writer, err := dds.CreateDataWriter[ShapeType](publisher, topic, qos.Policies{})
	if err != nil {
		return err
	}
	defer writer.Close()

	fmt.Printf("Publishing %s shapes on topic %s.\n", opts.color, opts.topic)

	shape := ShapeType{Color: opts.color, X: 30, Y: 30, ShapeSize: 30}
	dx, dy := int32(3), int32(2)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	stop := signalChan()

	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			shape.X += dx
			shape.Y += dy
			if shape.X <= 0 || shape.X >= canvasSize-shape.ShapeSize {
				dx = -dx
			}
			if shape.Y <= 0 || shape.Y >= canvasSize-shape.ShapeSize {
				dy = -dy
			}
			if err := writer.Write(shape); err != nil {
				fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
			}
		}
	}
}

func subscribeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "subscribe",
		Aliases: []string{"sub"},
		Short:   "Subscribe and print received shapes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(opts)
		},
	}
}

func runSubscribe(opts *options) error {
	dp, err := openParticipant(opts)
	if err != nil {
		return err
	}
	defer dp.Close()

	topic, err := dp.CreateTopic(opts.topic, "ShapeType", shapeQoS(opts.bestEffort))
	if err != nil {
		return err
	}
	subscriber, err := dp.CreateSubscriber(qos.Policies{})
	if err != nil {
		return err
	}
	reader, err := dds.CreateDataReader[ShapeType](subscriber, topic, qos.Policies{})
	if err != nil {
		return err
	}
	defer reader.Close()

	fmt.Printf("Waiting for shapes on topic %s.\n", opts.topic)
	stop := signalChan()

	var received int
	for {
		select {
		case <-stop:
			fmt.Println("\nStopped")
			return nil
		case sample := <-reader.Samples():
			switch {
			case sample.Info.ValidData:
				received++
				s := sample.Value
				fmt.Printf("Sample received [%s: (%d,%d)], count=%d\n",
					s.Color, s.X, s.Y, received)
			case sample.Info.InstanceState == dds.NotAliveDisposed:
				fmt.Println("Shape disposed by its writer")
			}
		}
	}
}

func signalChan() <-chan os.Signal {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	return sig
}
