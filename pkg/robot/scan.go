package robot

import (
	"context"
	"strings"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/zap"
)

// Found is a servo arm discovered on a serial port.
type Found struct {
	Port   string
	Servos []feetech.FoundServo
}

// OpenBus opens an STS bus on port.
func OpenBus(port string) (*feetech.Bus, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open bus %s", port)
	}
	return bus, nil
}

// Scan probes every serial port for a complete arm. Ports that cannot be
// opened or do not answer are skipped.
func Scan(ctx context.Context, logger *zap.SugaredLogger) ([]Found, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "list serial ports")
	}

	var found []Found
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		servos, err := probe(ctx, port)
		if err != nil {
			logger.Debugw("No arm on port", "port", port, "error", err)
			continue
		}
		logger.Infow("Found servo arm", "port", port, "servos", len(servos))
		found = append(found, Found{Port: port, Servos: servos})
	}
	return found, nil
}

func probe(ctx context.Context, port string) ([]feetech.FoundServo, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	bus, err := OpenBus(port)
	if err != nil {
		return nil, err
	}
	defer bus.Close()

	n := len(AllMotors())
	servos, err := bus.Scan(ctx, 1, n)
	if err != nil {
		return nil, errors.Wrap(err, "scan servos")
	}
	if !IsComplete(servos) {
		return nil, errors.Errorf("expected %d servos with IDs 1-%d, found %d", n, n, len(servos))
	}
	return servos, nil
}

// IsComplete reports whether servos are exactly the IDs 1..len(AllMotors()).
func IsComplete(servos []feetech.FoundServo) bool {
	n := len(AllMotors())
	if len(servos) != n {
		return false
	}
	ids := make(map[int]bool, n)
	for _, s := range servos {
		ids[s.ID] = true
	}
	for i := 1; i <= n; i++ {
		if !ids[i] {
			return false
		}
	}
	return true
}
