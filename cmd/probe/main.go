// Command probe logs in to the FranklinWH cloud and prints what the gateway
// reports, including the endpoints the server doesn't use.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/franklinwh/pkg/franklin"
	"github.com/raterudder/franklinwh/pkg/log"
)

func main() {
	f := franklin.Configured()
	research := lflag.Bool("research", false, "Also dump the accessory, equipment and controllable load lists")
	lflag.Configure()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := f.Dial(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to connect", "error", err)
		os.Exit(1)
	}

	out := map[string]any{"gatewayID": client.GatewayID()}
	if out["stats"], err = client.GetStats(ctx); err != nil {
		fail(ctx, "stats", err)
	}
	if out["mode"], err = client.GetMode(ctx); err != nil {
		fail(ctx, "mode", err)
	}
	if out["switches"], err = client.GetSwitchState(ctx); err != nil {
		fail(ctx, "switches", err)
	}

	if *research {
		for name, get := range map[string]func(context.Context) (json.RawMessage, error){
			"accessories":       client.GetAccessoryList,
			"equipment":         client.GetEquipmentList,
			"controllableLoads": client.GetControllableLoads,
		} {
			raw, err := get(ctx)
			if err != nil {
				fail(ctx, name, err)
			}
			out[name] = raw
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fail(ctx context.Context, what string, err error) {
	log.Ctx(ctx).ErrorContext(ctx, "failed to read "+what, "error", err)
	os.Exit(1)
}
