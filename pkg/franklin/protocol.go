package franklin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/raterudder/franklinwh/pkg/log"
)

type mqttResult struct {
	DataArea string `json:"dataArea"`
}

// sendCommand frames data in an envelope, posts it to the generic command
// endpoint and returns the decoded inner dataArea of the reply. Must be called
// with c.mu held.
func (c *Client) sendCommand(ctx context.Context, cmdType int, data any) (json.RawMessage, error) {
	fr, err := c.call(ctx, func() (*http.Request, error) {
		snno := c.nextSnno()
		body, err := buildEnvelope(cmdType, c.gatewayID, snno, c.now(), data)
		if err != nil {
			return nil, err
		}
		log.Ctx(ctx).DebugContext(ctx, "sending franklin command", slog.Int("cmdType", cmdType), slog.Uint64("snno", snno))
		return c.newPostJSONRequest(ctx, sendMqttPath, body)
	})
	if err != nil {
		return nil, err
	}

	if err := checkCode(fr); err != nil {
		if errors.Is(err, ErrDeviceTimeout) || errors.Is(err, ErrGatewayOffline) {
			log.Ctx(ctx).WarnContext(ctx, "franklin gateway unavailable", slog.Int("cmdType", cmdType), slog.Any("error", err))
		} else {
			log.Ctx(ctx).ErrorContext(ctx, "franklin command failed", slog.Int("cmdType", cmdType), slog.Int("code", fr.Code), slog.String("message", fr.Message))
		}
		return nil, err
	}

	var res mqttResult
	if err := json.Unmarshal(fr.Result, &res); err != nil {
		return nil, fmt.Errorf("failed to decode command result: %w", err)
	}
	inner := json.RawMessage(res.DataArea)
	if !json.Valid(inner) {
		log.Ctx(ctx).ErrorContext(ctx, "invalid franklin dataArea", slog.Int("cmdType", cmdType), slog.String("dataArea", res.DataArea))
		return nil, errors.New("command result dataArea is not valid json")
	}
	return inner, nil
}

// status sends the high level status command.
func (c *Client) status(ctx context.Context) (json.RawMessage, error) {
	return c.sendCommand(ctx, cmdTypeStatus, map[string]any{"opt": 1, "refreshData": 1})
}

// switchRecord is the flattened switch status record. Numbers are kept as
// json.Number so fields we don't touch are written back exactly as read.
type switchRecord map[string]any

func decodeSwitchRecord(raw json.RawMessage) (switchRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rec switchRecord
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode switch status: %w", err)
	}
	if rec == nil {
		return nil, errors.New("switch status is empty")
	}
	return rec, nil
}

// switchStatus reads the switch status record.
func (c *Client) switchStatus(ctx context.Context) (switchRecord, error) {
	raw, err := c.sendCommand(ctx, cmdTypeSwitch, map[string]any{"opt": 0, "order": c.gatewayID})
	if err != nil {
		return nil, err
	}
	return decodeSwitchRecord(raw)
}

// number returns the numeric field key, accepting json.Number, native numbers
// and numeric strings.
func (r switchRecord) number(key string) (float64, bool) {
	switch v := r[key].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := json.Number(v).Float64()
		return f, err == nil
	}
	return 0, false
}
