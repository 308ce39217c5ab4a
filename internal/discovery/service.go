package discovery

import (
	"context"
	"errors"
	"log"
	"time"
)

const defaultResolveTimeout = 10 * time.Second

// Options controls inventory discovery.
type Options struct {
	SearchTimeout  time.Duration
	MaxResults     int
	ResolveTimeout time.Duration
}

// DiscoverDevices searches for renderers and resolves each unique location
// into a Device. Devices without the required services, without an id, or
// whose volume/address lookup fails are left out. A description that cannot
// be fetched or parsed aborts discovery.
func DiscoverDevices(ctx context.Context, searcher *Searcher, resolver *Resolver, options Options, logger *log.Logger) ([]Device, error) {
	if logger == nil {
		logger = log.Default()
	}
	if options.ResolveTimeout <= 0 {
		options.ResolveTimeout = defaultResolveTimeout
	}

	responses, err := searcher.Discover(ctx, options.SearchTimeout, options.MaxResults)
	if err != nil {
		logger.Printf("SSDP discovery error: %v", err)
		return nil, err
	}
	logger.Printf("SSDP returned %d responses", len(responses))

	devices := make([]Device, 0, len(responses))
	seenIDs := make(map[string]struct{})

	for _, resp := range responses {
		resolveCtx, cancel := context.WithTimeout(ctx, options.ResolveTimeout)
		device, err := resolver.Resolve(resolveCtx, resp.Location)
		cancel()

		if err != nil {
			var descErr *DescriptionError
			if errors.As(err, &descErr) {
				return nil, err
			}
			logger.Printf("Skipping %s: %v", resp.Location, err)
			continue
		}
		if device == nil {
			logger.Printf("Skipping %s: not a controllable renderer", resp.Location)
			continue
		}
		if device.ID == "" {
			logger.Printf("Skipping %s: no hardware address or UDN", resp.Location)
			continue
		}
		if _, dup := seenIDs[device.ID]; dup {
			logger.Printf("Skipping %s: duplicate device id %s", resp.Location, device.ID)
			continue
		}
		seenIDs[device.ID] = struct{}{}
		devices = append(devices, *device)
		logger.Printf("Discovered device: %s (%s)", device.Name, device.ID)
	}

	logger.Printf("Discovery complete: %d devices found", len(devices))
	return devices, nil
}
