package franklin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// These endpoints are used by the vendor app but their payloads aren't
// documented, so the raw result is returned for inspection.

const (
	controlLoadPath   = "hes-gateway/terminal/selectTerGatewayControlLoadByGatewayId"
	accessoryListPath = "hes-gateway/terminal/getIotAccessoryList"
	equipmentListPath = "hes-gateway/manage/getEquipmentList"
)

func (c *Client) getRaw(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fr, err := c.call(ctx, func() (*http.Request, error) {
		return c.newGetRequest(ctx, path, params)
	})
	if err != nil {
		return nil, err
	}
	if err := checkCode(fr); err != nil {
		return nil, err
	}
	return fr.Result, nil
}

// GetControllableLoads returns the gateway's controllable load configuration.
func (c *Client) GetControllableLoads(ctx context.Context) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("id", c.GatewayID())
	params.Set("lang", "en_US")
	return c.getRaw(ctx, controlLoadPath, params)
}

// GetAccessoryList returns the accessories paired with the gateway.
func (c *Client) GetAccessoryList(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, accessoryListPath, c.gatewayParams())
}

// GetEquipmentList returns the equipment installed behind the gateway.
func (c *Client) GetEquipmentList(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, equipmentListPath, c.gatewayParams())
}

func (c *Client) gatewayParams() url.Values {
	params := url.Values{}
	params.Set("gatewayId", c.GatewayID())
	params.Set("lang", "en_US")
	return params
}
