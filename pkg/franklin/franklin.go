package franklin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/raterudder/franklinwh/pkg/log"
	"github.com/raterudder/franklinwh/pkg/types"
)

// System is the public surface of a gateway client.
type System interface {
	// GetStats returns instantaneous power readings and today's totals.
	GetStats(ctx context.Context) (types.Stats, error)

	// GetMode returns the current operating mode. An undocumented running
	// mode is reported as types.ModeUnknown rather than an error.
	GetMode(ctx context.Context) (types.ModeState, error)

	// SetMode switches the operating mode and returns the decoded vendor
	// response for the caller to interpret.
	SetMode(ctx context.Context, mode Mode) (Response, error)

	// GetSwitchState returns whether each smart circuit is powered.
	GetSwitchState(ctx context.Context) (types.Switches, error)

	// SetSwitchState changes the smart circuits. nil slots are left as-is.
	SetSwitchState(ctx context.Context, desired types.SwitchState) (map[string]any, error)

	// GatewayID returns the gateway being controlled.
	GatewayID() string
}

var _ System = (*Client)(nil)

type statusResult struct {
	PowerSolar     float64 `json:"p_sun"`
	PowerGenerator float64 `json:"p_gen"`
	PowerBattery   float64 `json:"p_fhp"`
	PowerGrid      float64 `json:"p_uti"`
	PowerLoad      float64 `json:"p_load"`
	SOC            float64 `json:"soc"`

	TotalBatteryCharge    float64 `json:"kwh_fhp_chg"`
	TotalBatteryDischarge float64 `json:"kwh_fhp_di"`
	TotalGridImport       float64 `json:"kwh_uti_in"`
	TotalGridExport       float64 `json:"kwh_uti_out"`
	TotalSolar            float64 `json:"kwh_sun"`
	TotalGenerator        float64 `json:"kwh_gen"`
	TotalLoad             float64 `json:"kwh_load"`

	// 1 means the circuit is carrying load
	ProLoad []float64 `json:"pro_load"`
}

var statsFields = []string{
	"p_sun", "p_gen", "p_fhp", "p_uti", "p_load", "soc",
	"kwh_fhp_chg", "kwh_fhp_di", "kwh_uti_in", "kwh_uti_out", "kwh_sun", "kwh_gen", "kwh_load",
}

// decodeRequired unmarshals raw into dest after checking every key in fields
// is present and non-null, so a missing reading isn't silently reported as 0.
func decodeRequired(raw json.RawMessage, dest any, fields ...string) error {
	var present map[string]json.RawMessage
	if err := json.Unmarshal(raw, &present); err != nil {
		return err
	}
	for _, f := range fields {
		v, ok := present[f]
		if !ok || string(v) == "null" {
			return fmt.Errorf("missing field %q", f)
		}
	}
	return json.Unmarshal(raw, dest)
}

// GetStats implements System.
func (c *Client) GetStats(ctx context.Context) (types.Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.status(ctx)
	if err != nil {
		return types.Stats{}, err
	}

	var res statusResult
	if err := decodeRequired(raw, &res, statsFields...); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode franklin status", slog.Any("error", err))
		return types.Stats{}, fmt.Errorf("failed to decode status: %w", err)
	}

	log.Ctx(ctx).DebugContext(ctx, "franklin status",
		slog.Float64("soc", res.SOC),
		slog.Float64("solarKW", res.PowerSolar),
		slog.Float64("gridKW", res.PowerGrid),
		slog.Float64("loadKW", res.PowerLoad),
		slog.Float64("batteryKW", res.PowerBattery),
	)

	return types.Stats{
		Current: types.Current{
			SolarKW:     res.PowerSolar,
			GeneratorKW: res.PowerGenerator,
			BatteryKW:   res.PowerBattery,
			GridKW:      res.PowerGrid,
			HomeKW:      res.PowerLoad,
			BatterySOC:  res.SOC,
		},
		Totals: types.Totals{
			BatteryChargeKWH:    res.TotalBatteryCharge,
			BatteryDischargeKWH: res.TotalBatteryDischarge,
			GridImportKWH:       res.TotalGridImport,
			GridExportKWH:       res.TotalGridExport,
			SolarKWH:            res.TotalSolar,
			GeneratorKWH:        res.TotalGenerator,
			HomeKWH:             res.TotalLoad,
		},
	}, nil
}

// GetMode implements System.
func (c *Client) GetMode(ctx context.Context) (types.ModeState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.switchStatus(ctx)
	if err != nil {
		return types.ModeState{}, err
	}

	code, ok := rec.number("runingMode") // misspelled by the api
	if !ok {
		return types.ModeState{}, fmt.Errorf("switch status missing %q", "runingMode")
	}
	name, ok := modeCodes[int(code)]
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "unknown franklin running mode", slog.Int("runningMode", int(code)))
		return types.ModeState{Mode: types.ModeUnknown, RunningMode: int(code)}, nil
	}

	field := modeSOCField[name]
	soc, ok := rec.number(field)
	if !ok {
		return types.ModeState{}, fmt.Errorf("switch status missing %q", field)
	}
	return types.ModeState{Mode: name, SOC: &soc, RunningMode: int(code)}, nil
}

// SetMode implements System. The mode update endpoint isn't enveloped and its
// code isn't classified here.
func (c *Client) SetMode(ctx context.Context, mode Mode) (Response, error) {
	if err := mode.validate(); err != nil {
		return Response{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data := mode.payload(c.gatewayID)
	log.Ctx(ctx).InfoContext(
		ctx,
		"updating franklin tou mode",
		slog.String("mode", string(mode.Name)),
		slog.String("soc", data.Get("soc")),
		slog.String("workMode", data.Get("workMode")),
	)

	fr, err := c.call(ctx, func() (*http.Request, error) {
		req, err := c.newPostFormRequest(ctx, updateTouModePath, data)
		if err != nil {
			return nil, err
		}
		req.Header.Set("optsource", "3")
		return req, nil
	})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to update tou mode", slog.Any("error", err))
		return Response{}, err
	}
	return fr, nil
}

// GetSwitchState implements System.
func (c *Client) GetSwitchState(ctx context.Context) (types.Switches, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.status(ctx)
	if err != nil {
		return types.Switches{}, err
	}

	var res statusResult
	if err := decodeRequired(raw, &res, "pro_load"); err != nil {
		return types.Switches{}, fmt.Errorf("failed to decode status: %w", err)
	}
	if len(res.ProLoad) != types.SwitchCount {
		return types.Switches{}, fmt.Errorf("expected %d pro_load entries, got %d", types.SwitchCount, len(res.ProLoad))
	}

	var sw types.Switches
	for i, v := range res.ProLoad {
		sw[i] = v == 1
	}
	return sw, nil
}

func sameSwitch(a, b *bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// SetSwitchState implements System. The current switch record is read first
// and written back with only the requested circuits changed.
func (c *Client) SetSwitchState(ctx context.Context, desired types.SwitchState) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.switchStatus(ctx)
	if err != nil {
		return nil, err
	}

	merged, ok := rec.number("SwMerge")
	if !ok {
		log.Ctx(ctx).ErrorContext(ctx, "switch record has no usable SwMerge flag", slog.Any("SwMerge", rec["SwMerge"]))
		return nil, ErrMergeFlagMissing
	}
	if merged == 1 && !sameSwitch(desired[0], desired[1]) {
		log.Ctx(ctx).WarnContext(ctx, "refusing to set merged smart switches to different values")
		return nil, ErrSwitchesMerged
	}

	rec["opt"] = 1
	delete(rec, "modeChoose")
	delete(rec, "result")

	for i, v := range desired {
		if v == nil {
			continue
		}
		sw := i + 1
		rec[fmt.Sprintf("Sw%dMsgType", sw)] = 1
		if *v {
			rec[fmt.Sprintf("Sw%dMode", sw)] = 1
			rec[fmt.Sprintf("Sw%dProLoad", sw)] = 0
		} else {
			rec[fmt.Sprintf("Sw%dMode", sw)] = 0
			rec[fmt.Sprintf("Sw%dProLoad", sw)] = 1
		}
	}

	log.Ctx(ctx).InfoContext(ctx, "setting franklin smart switches", slog.Any("desired", desired))

	raw, err := c.sendCommand(ctx, cmdTypeSwitch, rec)
	if err != nil {
		return nil, err
	}
	res, err := decodeSwitchRecord(raw)
	if err != nil {
		return nil, err
	}
	return res, nil
}
