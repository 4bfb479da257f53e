// Package main provides the ddsperf binary entry point.
// ddsperf measures throughput and round-trip latency between DDS
// participants, in the manner of the CycloneDDS tool of the same name.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dataflume/flumedds/dds"
	"github.com/dataflume/flumedds/qos"
	"github.com/dataflume/flumedds/rtps"
)

// KeyedSeq is the measurement payload: a sequence number, a key and
// adjustable baggage to exercise different wire sizes.
type KeyedSeq struct {
	Seq     uint32
	Keyval  uint32
	Baggage []byte
}

// Key implements dds.Keyed.
func (k KeyedSeq) Key() any { return k.Keyval }

// wireSize estimates the serialized size: two u32 fields plus the
// baggage sequence length prefix.
func (k KeyedSeq) wireSize() uint64 {
	return 8 + 4 + uint64(len(k.Baggage))
}

type options struct {
	domain     uint16
	bestEffort bool
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
		Use:   "ddsperf",
		Short: "DDS performance measurement tool",
		Long: `ddsperf measures publish throughput (pub/sub) and round-trip
latency (ping/pong) over a DDS domain.

Start the matching role on another host or process:

  ddsperf pub 1000 size 256      publish 1000 msg/s with 256 B baggage
  ddsperf sub                    receive and report rates
  ddsperf ping 100               ping at 100 msg/s and report RTT
  ddsperf pong                   echo pings back`,
	}
	cmd.PersistentFlags().Uint16Var(&opts.domain, "domain", 0, "DDS domain id")
	cmd.PersistentFlags().BoolVarP(&opts.bestEffort, "best-effort", "u", false,
		"Use best-effort instead of reliable endpoints")

	cmd.AddCommand(pubCmd(opts), subCmd(opts), pingCmd(opts), pongCmd(opts))
	return cmd
}

// topicNames derives the well-known measurement topics. The reliability
// marker keeps reliable and best-effort runs from cross-matching.
func topicNames(bestEffort bool) (data, ping, pong string) {
	marker := "R"
	if bestEffort {
		marker = "U"
	}
	return "DDSPerf" + marker + "DataKS",
		"DDSPerf" + marker + "PingKS",
		"DDSPerf" + marker + "PongKS"
}

func perfQoS(bestEffort bool) qos.Policies {
	b := qos.NewBuilder().KeepLast(16)
	if bestEffort {
		b = b.BestEffort()
	} else {
		b = b.Reliable(rtps.DurationFromStd(time.Second))
	}
	return b.Build()
}

func openParticipant(opts *options) (*dds.DomainParticipant, error) {
	cfg := dds.DefaultParticipantConfig()
	cfg.DomainID = opts.domain
	cfg.EntityName = "ddsperf"
	return dds.NewParticipant(cfg)
}

func parseRate(arg string) (uint32, error) {
	rate, err := strconv.ParseUint(arg, 10, 32)
	if err != nil || rate == 0 {
		return 0, fmt.Errorf("rate must be a positive integer, got %q", arg)
	}
	return uint32(rate), nil
}

// parseSize reads the optional trailing "size N" arguments.
func parseSize(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	if len(args) != 2 || args[0] != "size" {
		return 0, fmt.Errorf("expected \"size <bytes>\", got %v", args)
	}
	size, err := strconv.Atoi(args[1])
	if err != nil || size < 0 {
		return 0, fmt.Errorf("size must be a non-negative integer, got %q", args[1])
	}
	return size, nil
}

func pubCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pub <rate> [size <bytes>]",
		Short: "Publish samples at a fixed rate",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := parseRate(args[0])
			if err != nil {
				return err
			}
			size, err := parseSize(args[1:])
			if err != nil {
				return err
			}
			return runPub(opts, rate, size)
		},
	}
}

func runPub(opts *options, rate uint32, size int) error {
	dp, err := openParticipant(opts)
	if err != nil {
		return err
	}
	defer dp.Close()

	dataTopic, _, _ := topicNames(opts.bestEffort)
	topic, err := dp.CreateTopic(dataTopic, "KeyedSeq", perfQoS(opts.bestEffort))
	if err != nil {
		return err
	}
	publisher, err := dp.CreatePublisher(qos.Policies{})
	if err != nil {
		return err
	}
	writer, err := dds.CreateDataWriter[KeyedSeq](publisher, topic, qos.Policies{})
	if err != nil {
		return err
	}
	defer writer.Close()

	msg := KeyedSeq{Keyval: 1234, Baggage: make([]byte, size)}
	for i := range msg.Baggage {
		msg.Baggage[i] = 'x'
	}
	fmt.Printf("baggage size = %d bytes\n", len(msg.Baggage))

	interval := time.Second / time.Duration(rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	report := time.NewTicker(time.Second)
	defer report.Stop()
	stop := signalChan()

	var sent, sentBytes uint64
	for {
		select {
		case <-stop:
			return nil
		case <-report.C:
			fmt.Printf("%s samples sent, %s bytes\n",
				formatCount(sent), formatCount(sentBytes))
			sent, sentBytes = 0, 0
		case <-ticker.C:
			msg.Seq++
			if err := writer.Write(msg); err != nil {
				fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
				continue
			}
			sent++
			sentBytes += msg.wireSize()
		}
	}
}

func subCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sub",
		Short: "Receive samples and report rates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSub(opts)
		},
	}
}

func runSub(opts *options) error {
	dp, err := openParticipant(opts)
	if err != nil {
		return err
	}
	defer dp.Close()

	dataTopic, _, _ := topicNames(opts.bestEffort)
	topic, err := dp.CreateTopic(dataTopic, "KeyedSeq", perfQoS(opts.bestEffort))
	if err != nil {
		return err
	}
	subscriber, err := dp.CreateSubscriber(qos.Policies{})
	if err != nil {
		return err
	}
	reader, err := dds.CreateDataReader[KeyedSeq](subscriber, topic, qos.Policies{})
	if err != nil {
		return err
	}
	defer reader.Close()

	report := time.NewTicker(time.Second)
	defer report.Stop()
	stop := signalChan()

	var count, lost, bytes uint64
	var lastSeq uint32
	fmt.Println("Waiting for messages.")
	for {
		select {
		case <-stop:
			return nil
		case <-report.C:
			fmt.Printf("%s samples %s lost %s bytes\n",
				formatCount(count), formatCount(lost), formatCount(bytes))
			count, lost, bytes = 0, 0, 0
		case sample := <-reader.Samples():
			if !sample.Info.ValidData {
				continue
			}
			msg := sample.Value
			count++
			bytes += msg.wireSize()
			if lastSeq != 0 && msg.Seq > lastSeq+1 {
				lost += uint64(msg.Seq - lastSeq - 1)
			}
			if msg.Seq > lastSeq {
				lastSeq = msg.Seq
			}
		}
	}
}

func pingCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ping <rate> [size <bytes>]",
		Short: "Send pings and report round-trip times",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := parseRate(args[0])
			if err != nil {
				return err
			}
			size, err := parseSize(args[1:])
			if err != nil {
				return err
			}
			return runPing(opts, rate, size)
		},
	}
}

func runPing(opts *options, rate uint32, size int) error {
	dp, err := openParticipant(opts)
	if err != nil {
		return err
	}
	defer dp.Close()

	_, pingName, pongName := topicNames(opts.bestEffort)
	policies := perfQoS(opts.bestEffort)
	pingTopic, err := dp.CreateTopic(pingName, "KeyedSeq", policies)
	if err != nil {
		return err
	}
	pongTopic, err := dp.CreateTopic(pongName, "KeyedSeq", policies)
	if err != nil {
		return err
	}
	publisher, err := dp.CreatePublisher(qos.Policies{})
	if err != nil {
		return err
	}
	subscriber, err := dp.CreateSubscriber(qos.Policies{})
	if err != nil {
		return err
	}
	writer, err := dds.CreateDataWriter[KeyedSeq](publisher, pingTopic, qos.Policies{})
	if err != nil {
		return err
	}
	defer writer.Close()
	reader, err := dds.CreateDataReader[KeyedSeq](subscriber, pongTopic, qos.Policies{})
	if err != nil {
		return err
	}
	defer reader.Close()

	interval := time.Second / time.Duration(rate)
	pingTicker := time.NewTicker(interval)
	defer pingTicker.Stop()
	report := time.NewTicker(time.Second)
	defer report.Stop()
	stop := signalChan()

	baggage := make([]byte, size)
	for i := range baggage {
		baggage[i] = 'x'
	}

	var pingSeq, lastPongSeq, count, lostCount uint32
	var byteCount uint64
	var rttTotal, rttMax time.Duration

	fmt.Println("Waiting for messages.")
	for {
		select {
		case <-stop:
			return nil

		case <-report.C:
			rttAvg := time.Duration(0)
			if count > 0 {
				rttAvg = rttTotal / time.Duration(count)
			}
			fmt.Printf("%s samples %s lost %s bytes  RTT avg %s, max %s\n",
				formatCount(uint64(count)), formatCount(uint64(lostCount)),
				formatCount(byteCount), formatDuration(rttAvg), formatDuration(rttMax))
			count, lostCount, byteCount = 0, 0, 0
			rttTotal, rttMax = 0, 0

		case <-pingTicker.C:
			pingSeq++
			msg := KeyedSeq{Seq: pingSeq, Keyval: 1234, Baggage: baggage}
			if err := writer.WriteWithTimestamp(msg, time.Now()); err != nil {
				fmt.Fprintf(os.Stderr, "ping write failed: %v\n", err)
			}

		case sample := <-reader.Samples():
			if !sample.Info.ValidData {
				continue
			}
			msg := sample.Value
			count++
			byteCount += msg.wireSize()
			if msg.Seq > lastPongSeq {
				lostCount += msg.Seq - lastPongSeq - 1
				lastPongSeq = msg.Seq
			} else {
				fmt.Printf("Eek! Pong seq did not increase! expected=%d received=%d\n",
					lastPongSeq+1, msg.Seq)
			}
			if sample.Info.SourceTimestamp.IsValid() {
				rtt := time.Since(sample.Info.SourceTimestamp.ToStd())
				rttTotal += rtt
				if rtt > rttMax {
					rttMax = rtt
				}
			}
		}
	}
}

func pongCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pong",
		Short: "Echo pings back to the sender",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPong(opts)
		},
	}
}

func runPong(opts *options) error {
	dp, err := openParticipant(opts)
	if err != nil {
		return err
	}
	defer dp.Close()

	_, pingName, pongName := topicNames(opts.bestEffort)
	policies := perfQoS(opts.bestEffort)
	pingTopic, err := dp.CreateTopic(pingName, "KeyedSeq", policies)
	if err != nil {
		return err
	}
	pongTopic, err := dp.CreateTopic(pongName, "KeyedSeq", policies)
	if err != nil {
		return err
	}
	publisher, err := dp.CreatePublisher(qos.Policies{})
	if err != nil {
		return err
	}
	subscriber, err := dp.CreateSubscriber(qos.Policies{})
	if err != nil {
		return err
	}
	writer, err := dds.CreateDataWriter[KeyedSeq](publisher, pongTopic, qos.Policies{})
	if err != nil {
		return err
	}
	defer writer.Close()
	reader, err := dds.CreateDataReader[KeyedSeq](subscriber, pingTopic, qos.Policies{})
	if err != nil {
		return err
	}
	defer reader.Close()

	stop := signalChan()
	fmt.Println("Waiting for pings.")
	for {
		select {
		case <-stop:
			return nil
		case sample := <-reader.Samples():
			if !sample.Info.ValidData {
				continue
			}
			// The source timestamp rides along so the pinger can compute
			// the full round trip.
			ts := time.Now()
			if sample.Info.SourceTimestamp.IsValid() {
				ts = sample.Info.SourceTimestamp.ToStd()
			}
			if err := writer.WriteWithTimestamp(sample.Value, ts); err != nil {
				fmt.Fprintf(os.Stderr, "pong write failed: %v\n", err)
			}
		}
	}
}

func signalChan() <-chan os.Signal {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	return sig
}

// formatCount renders large counts with k/M/G suffixes.
func formatCount(n uint64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fG", float64(n)/1e9)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1e3)
	}
	return strconv.FormatUint(n, 10)
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1e3)
	}
	return fmt.Sprintf("%dµs", d.Microseconds())
}
