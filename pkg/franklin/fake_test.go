package franklin

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/raterudder/franklinwh/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

// sentEnvelope is how the fake server sees a command envelope.
type sentEnvelope struct {
	Lang      string          `json:"lang"`
	CmdType   int             `json:"cmdType"`
	EquipNo   string          `json:"equipNo"`
	Type      int             `json:"type"`
	TimeStamp int64           `json:"timeStamp"`
	Snno      uint64          `json:"snno"`
	Len       int             `json:"len"`
	CRC       string          `json:"crc"`
	DataArea  json.RawMessage `json:"dataArea"`
}

func (e sentEnvelope) data(t *testing.T) map[string]any {
	var m map[string]any
	require.NoError(t, json.Unmarshal(e.DataArea, &m))
	return m
}

// fakeGateway emulates the parts of the FranklinWH cloud the client uses.
// Tokens are "tok-N" where N is the login count; only the latest is valid.
type fakeGateway struct {
	t *testing.T

	mu           sync.Mutex
	logins       int
	loginCode    int
	token        string
	expired      bool
	unauthorized bool
	httpUnauth   bool
	mqttCodes    []int
	envelopes    []sentEnvelope
	writes       []map[string]any
	forms        []url.Values
	formHeaders  []http.Header
	modeReply    Response
	gateways     []map[string]any
	status       map[string]any
	switchRecord string
}

func newFakeGateway(t *testing.T) *fakeGateway {
	return &fakeGateway{
		t: t,
		status: map[string]any{
			"p_sun": 4.5, "p_gen": 0.0, "p_fhp": -1.2, "p_uti": 0.3, "p_load": 3.6, "soc": 87.0,
			"kwh_fhp_chg": 5.1, "kwh_fhp_di": 2.2, "kwh_uti_in": 1.4, "kwh_uti_out": 6.8,
			"kwh_sun": 12.3, "kwh_gen": 0.0, "kwh_load": 9.9,
			"pro_load": []int{1, 0, 1},
		},
		switchRecord: `{"SwMerge":0,"runingMode":105249,"touMinSoc":15,"selfMinSoc":20,"backupMaxSoc":100,` +
			`"Sw1Mode":0,"Sw1MsgType":0,"Sw1ProLoad":1,"Sw2Mode":1,"Sw2MsgType":0,"Sw2ProLoad":0,` +
			`"Sw3Mode":1,"Sw3MsgType":0,"Sw3ProLoad":0,"modeChoose":2,"result":1,"serial":12345678901234567}`,
		modeReply: Response{Code: 200, Message: "success", Success: true},
	}
}

// expire invalidates the current token so the next authenticated call sees a 401.
func (g *fakeGateway) expire() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expired = true
}

func (g *fakeGateway) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(g.t, json.NewEncoder(w).Encode(v))
}

func (g *fakeGateway) reply(w http.ResponseWriter, code int, message string, result any) {
	g.writeJSON(w, map[string]any{
		"code":    code,
		"message": message,
		"success": code == 200,
		"result":  result,
	})
}

func (g *fakeGateway) replyDataArea(w http.ResponseWriter, dataArea string) {
	g.reply(w, 200, "success", map[string]any{"dataArea": dataArea})
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r.URL.Path == "/"+loginPath {
		require.NoError(g.t, r.ParseForm())
		if g.loginCode != 0 {
			g.reply(w, g.loginCode, "login rejected", nil)
			return
		}
		g.logins++
		g.token = fmt.Sprintf("tok-%d", g.logins)
		g.expired = false
		g.reply(w, 200, "success", map[string]any{"token": g.token, "userId": 7})
		return
	}

	if g.unauthorized || g.expired || r.Header.Get(tokenHeader) != g.token {
		if g.httpUnauth {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		g.reply(w, 401, "token expired", nil)
		return
	}

	switch r.URL.Path {
	case "/" + sendMqttPath:
		g.handleMqtt(w, r)
	case "/" + updateTouModePath:
		require.NoError(g.t, r.ParseForm())
		g.forms = append(g.forms, r.PostForm)
		g.formHeaders = append(g.formHeaders, r.Header.Clone())
		g.writeJSON(w, g.modeReply)
	case "/" + gatewayListPath:
		g.reply(w, 200, "success", g.gateways)
	case "/" + accessoryListPath, "/" + equipmentListPath, "/" + controlLoadPath:
		g.reply(w, 200, "success", map[string]any{"path": r.URL.Path, "query": r.URL.RawQuery})
	default:
		http.Error(w, "not found: "+r.URL.Path, http.StatusNotFound)
	}
}

func (g *fakeGateway) handleMqtt(w http.ResponseWriter, r *http.Request) {
	assert.Equal(g.t, "application/json", r.Header.Get("Content-Type"))
	body, err := io.ReadAll(r.Body)
	require.NoError(g.t, err)

	var env sentEnvelope
	require.NoError(g.t, json.Unmarshal(body, &env), "envelope must be valid json: %s", body)
	// the remote side checks the crc against the bytes it received
	assert.Equal(g.t, fmt.Sprintf("%08X", crc32.ChecksumIEEE(env.DataArea)), env.CRC, "crc must cover the embedded dataArea")
	assert.Equal(g.t, len(env.DataArea), env.Len, "len must be the embedded dataArea length")
	g.envelopes = append(g.envelopes, env)

	if len(g.mqttCodes) > 0 {
		code := g.mqttCodes[0]
		g.mqttCodes = g.mqttCodes[1:]
		if code != 200 {
			g.reply(w, code, fmt.Sprintf("error %d", code), nil)
			return
		}
	}

	switch env.CmdType {
	case cmdTypeStatus:
		b, err := json.Marshal(g.status)
		require.NoError(g.t, err)
		g.replyDataArea(w, string(b))
	case cmdTypeSwitch:
		data := env.data(g.t)
		if data["opt"] == float64(1) {
			g.writes = append(g.writes, data)
			g.replyDataArea(w, string(env.DataArea))
			return
		}
		g.replyDataArea(w, g.switchRecord)
	default:
		g.reply(w, 500, "unknown cmdType", nil)
	}
}

func (g *fakeGateway) snnos() []uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]uint64, len(g.envelopes))
	for i, e := range g.envelopes {
		out[i] = e.Snno
	}
	return out
}

func newTestClient(t *testing.T, g *fakeGateway) *Client {
	t.Helper()
	ts := httptest.NewServer(g)
	t.Cleanup(ts.Close)

	opts := []Option{WithBaseURL(ts.URL), WithHTTPClient(ts.Client())}
	c, err := New(context.Background(), NewTokenFetcher("user@example.com", "pass", opts...), "GW123", opts...)
	require.NoError(t, err)
	return c
}

// set mutates the fake while holding its lock.
func (g *fakeGateway) set(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
}

func (g *fakeGateway) loginCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.logins
}

func (g *fakeGateway) sent() []sentEnvelope {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentEnvelope(nil), g.envelopes...)
}

func (g *fakeGateway) switchWrites() []map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]map[string]any(nil), g.writes...)
}
