package main

import (
	"context"
	"flag"
	"os"
	osSignal "os/signal"
	"time"

	"github.com/RyanBlaney/sonido-pulso/logging"
	"github.com/RyanBlaney/sonido-pulso/sensor"
	"github.com/RyanBlaney/sonido-pulso/simulate"
	"github.com/RyanBlaney/sonido-pulso/telemetry"
)

func main() {
	var (
		natsURL      = flag.String("nats", "nats://127.0.0.1:4222", "NATS url")
		accelSubject = flag.String("accel-subject", "pulso.samples.accel", "accelerometer subject")
		ppgSubject   = flag.String("ppg-subject", "pulso.samples.ppg", "PPG subject")
		cadence      = flag.Float64("cadence", 1.8, "steps per second")
		bpm          = flag.Float64("bpm", 72, "heart rate")
		noise        = flag.Float64("noise", 0.5, "uniform noise bound")
		seconds      = flag.Float64("duration", 300, "seconds of data to publish")
		batch        = flag.Int("batch", 10, "samples per message")
		seed         = flag.Uint64("seed", 1, "noise seed")
	)
	flag.Parse()

	nc, err := telemetry.Connect(*natsURL, "pulso-sim")
	if err != nil {
		logging.Fatal(err, "failed to connect to NATS", logging.Fields{"url": *natsURL})
	}
	defer nc.Drain()

	walk := simulate.DefaultWalk()
	walk.CadenceHz, walk.Noise, walk.Seed = *cadence, *noise, *seed
	pulse := simulate.DefaultPulse()
	pulse.Bpm, pulse.Noise, pulse.Seed = *bpm, *noise*4, *seed

	accel := walk.Samples(*seconds)
	ppg := pulse.Samples(*seconds)

	ctx, cancel := osSignal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	done := make(chan struct{}, 2)
	go func() {
		publish(ctx, len(accel), walk.SampleRate, *batch, func(lo, hi int) error {
			return nc.Publish(*accelSubject, sensor.EncodeAccel(accel[lo:hi]))
		})
		done <- struct{}{}
	}()
	go func() {
		publish(ctx, len(ppg), pulse.SampleRate, *batch, func(lo, hi int) error {
			return nc.Publish(*ppgSubject, sensor.EncodePPG(ppg[lo:hi]))
		})
		done <- struct{}{}
	}()

	logging.Info("publishing simulated samples", logging.Fields{
		"cadence":  *cadence,
		"bpm":      *bpm,
		"duration": *seconds,
	})
	<-done
	<-done
	logging.Info("producer stopped")
}

// publish sends n samples in batches at the real-time pace of sampleRate.
func publish(ctx context.Context, n int, sampleRate float64, batch int, send func(lo, hi int) error) {
	batch = max(batch, 1)
	period := time.Duration(float64(batch) / sampleRate * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for lo := 0; lo < n; lo += batch {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := send(lo, min(lo+batch, n)); err != nil {
				logging.Error(err, "publish failed")
			}
		}
	}
}
