// fpbsimd simulates the device firmware's HTTP endpoint for development:
// it serves /poll, /mutate, /slot-info, and /device-info, and can churn
// synthetic slot, log, and raw-serial traffic.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FASTSHIFT/FPBInject-sub001/internal/devsim"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/logging"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/model"
)

func main() {
	listen := flag.String("listen", "127.0.0.1:8008", "listen address")
	protocol := flag.Int("protocol", 2, "device protocol version (1 or 2)")
	firmware := flag.String("firmware", "fpbsim 0.3.0", "firmware string reported by /device-info")
	demo := flag.Bool("demo", false, "emit synthetic log/raw traffic and slot churn")
	demoInterval := flag.Duration("demo-interval", 2*time.Second, "demo emission period")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger, err := logging.New(logging.Config{Format: "console", Level: *logLevel})
	if err != nil {
		fatal(err)
	}
	defer logger.Sync() //nolint:errcheck

	version := model.ProtocolVersion(*protocol)
	if version != model.ProtocolV1 && version != model.ProtocolV2 {
		fatal(fmt.Errorf("unsupported protocol version %d", *protocol))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	device := devsim.NewDevice(version, *firmware)
	seed(device)

	if *demo {
		go demoLoop(ctx, device, *demoInterval)
	}

	srv := devsim.NewServer(device, logger)
	if err := srv.ListenAndServe(ctx, *listen); err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}

func seed(device *devsim.Device) {
	_ = device.InstallPatch(0, "HAL_GPIO_TogglePin", "0x08001234", "0x20000400", 48)
	_ = device.InstallPatch(2, "prvIdleTask", "0x08004C10", "0x20000600", 96)
	device.SetMemory(model.MemoryInfo{Base: 0x20000000, Size: 4096, Used: 640})
	device.AppendToolLog("device boot", "patch pool initialised")
}

func demoLoop(ctx context.Context, device *devsim.Device, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n++
			device.AppendToolLog(fmt.Sprintf("tick %d: scheduler alive", n))
			device.AppendRaw(fmt.Sprintf("uart[%d] ok\n", n))
			if n%5 == 0 {
				id := rand.Intn(device.Info().Capacity)
				_ = device.InstallPatch(id, fmt.Sprintf("demo_func_%d", n),
					fmt.Sprintf("0x%08X", 0x08000000+n*64),
					fmt.Sprintf("0x%08X", 0x20000000+n*64), 32+n%64)
			}
		}
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "fpbsimd:", err)
	os.Exit(1)
}
