package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skypointer/internal/config"
	"skypointer/internal/controller"
	"skypointer/internal/hostlink"
	"skypointer/internal/i2c"
	"skypointer/internal/matrix"
	"skypointer/internal/sensors/lsm6dsox"
	"skypointer/internal/udp"
	"skypointer/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./skypointer.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	drv, err := openMatrixDriver(cfg.Matrix)
	if err != nil {
		log.Fatalf("matrix driver init failed: %v", err)
	}

	bus, err := i2c.Open(fmt.Sprintf("/dev/i2c-%d", cfg.Sensor.I2CBus))
	if err != nil {
		log.Fatalf("i2c open failed: %v", err)
	}
	defer bus.Close()

	imu, err := openIMU(ctx, bus, cfg.Sensor)
	if err != nil {
		log.Fatalf("imu init failed: %v", err)
	}

	link := hostlink.New(hostlink.Config{Device: cfg.Link.Device, Baud: cfg.Link.Baud})
	if err := link.Open(); err != nil {
		log.Fatalf("host link open failed: %v", err)
	}
	defer link.Close()

	sinks := []controller.TelemetrySink{link.Sink()}
	if cfg.TelemetryUDP.Enable {
		b, err := udp.NewBroadcaster(cfg.TelemetryUDP.Dest)
		if err != nil {
			log.Fatalf("telemetry udp init failed: %v", err)
		}
		defer b.Close()
		sinks = append(sinks, hostlink.NewSink(b))
		log.Printf("telemetry udp dest=%s", cfg.TelemetryUDP.Dest)
	}

	ctrl := controller.New(controller.Config{
		Tick:         cfg.Loop.Tick,
		ReadyBackoff: cfg.Sensor.ReadyBackoff,
	}, drv, imu, controller.MultiSink(sinks...))

	log.Printf("skypointer starting")
	log.Printf("link device=%s baud=%d tick=%s matrix=%s", cfg.Link.Device, cfg.Link.Baud, cfg.Loop.Tick, cfg.Matrix.Backend)

	if err := ctrl.Start(ctx); err != nil {
		log.Fatalf("controller start failed: %v", err)
	}
	defer ctrl.Close()

	if err := link.Start(ctx, ctrl.Apply); err != nil {
		log.Fatalf("host link start failed: %v", err)
	}

	if cfg.Web.Enable {
		go func() {
			h := web.Handler(ctrl.Snapshot, link.Snapshot)
			if err := web.Serve(ctx, cfg.Web.Listen, h); err != nil {
				log.Printf("web server stopped: %v", err)
			}
		}()
		log.Printf("web status listen=%s", cfg.Web.Listen)
	}

	<-ctx.Done()
	log.Printf("skypointer stopping")
}

func openMatrixDriver(cfg config.MatrixConfig) (matrix.Driver, error) {
	switch cfg.Backend {
	case "gpio":
		return matrix.OpenGPIO(cfg.DataPin, cfg.ClockPin, cfg.LatchPin)
	case "off", "":
		return matrix.Discard(), nil
	}
	return nil, fmt.Errorf("unknown matrix backend %q", cfg.Backend)
}

// openIMU probes the IMU, retrying with the configured backoff until the
// sensor answers or shutdown begins. The device may power up after us.
func openIMU(ctx context.Context, bus *i2c.Bus, cfg config.SensorConfig) (*lsm6dsox.Device, error) {
	addr := cfg.Addr
	if addr == 0 {
		addr = lsm6dsox.DefaultAddress()
	}
	for {
		imu, err := lsm6dsox.New(bus.Dev(addr))
		if err == nil {
			return imu, nil
		}
		log.Printf("imu probe failed, retrying in %s: %v", cfg.ReadyBackoff, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.ReadyBackoff):
		}
	}
}
