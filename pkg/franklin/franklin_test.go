package franklin

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/raterudder/franklinwh/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStats(t *testing.T) {
	t.Run("Mapping", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)

		stats, err := c.GetStats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.Current{
			SolarKW:     4.5,
			GeneratorKW: 0,
			BatteryKW:   -1.2,
			GridKW:      0.3,
			HomeKW:      3.6,
			BatterySOC:  87,
		}, stats.Current)
		assert.Equal(t, types.Totals{
			BatteryChargeKWH:    5.1,
			BatteryDischargeKWH: 2.2,
			GridImportKWH:       1.4,
			GridExportKWH:       6.8,
			SolarKWH:            12.3,
			GeneratorKWH:        0,
			HomeKWH:             9.9,
		}, stats.Totals)

		sent := g.sent()
		require.Len(t, sent, 1)
		assert.Equal(t, cmdTypeStatus, sent[0].CmdType)
		assert.Equal(t, "GW123", sent[0].EquipNo)
		assert.Equal(t, map[string]any{"opt": float64(1), "refreshData": float64(1)}, sent[0].data(t))
	})

	t.Run("MissingField", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)
		g.set(func() { delete(g.status, "kwh_load") })

		_, err := c.GetStats(context.Background())
		assert.ErrorContains(t, err, "kwh_load")
	})

	t.Run("NullField", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)
		g.set(func() { g.status["soc"] = nil })

		_, err := c.GetStats(context.Background())
		assert.ErrorContains(t, err, "soc")
	})
}

// switchRecordWith returns the default record with the given fields replaced.
func switchRecordWith(t *testing.T, g *fakeGateway, fields map[string]any) string {
	t.Helper()
	rec, err := decodeSwitchRecord(json.RawMessage(g.switchRecord))
	require.NoError(t, err)
	for k, v := range fields {
		if v == nil {
			delete(rec, k)
			continue
		}
		rec[k] = v
	}
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	return string(b)
}

func TestGetMode(t *testing.T) {
	for _, tc := range []struct {
		name    string
		fields  map[string]any
		want    types.ModeName
		wantSOC float64
	}{
		{"TimeOfUse", map[string]any{"runingMode": 105249, "touMinSoc": 25}, types.ModeTimeOfUse, 25},
		{"TimeOfUseLegacy", map[string]any{"runingMode": 9322, "touMinSoc": 15}, types.ModeTimeOfUse, 15},
		{"SelfConsumption", map[string]any{"runingMode": 9323, "selfMinSoc": 35}, types.ModeSelfConsumption, 35},
		{"SelfConsumptionCurrent", map[string]any{"runingMode": 122324}, types.ModeSelfConsumption, 20},
		{"EmergencyBackup", map[string]any{"runingMode": 55842, "backupMaxSoc": 90}, types.ModeEmergencyBackup, 90},
		{"EmergencyBackupLegacy", map[string]any{"runingMode": 9324}, types.ModeEmergencyBackup, 100},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g := newFakeGateway(t)
			c := newTestClient(t, g)
			rec := switchRecordWith(t, g, tc.fields)
			g.set(func() { g.switchRecord = rec })

			state, err := c.GetMode(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, state.Mode)
			require.NotNil(t, state.SOC)
			assert.Equal(t, tc.wantSOC, *state.SOC)

			sent := g.sent()
			require.Len(t, sent, 1)
			assert.Equal(t, cmdTypeSwitch, sent[0].CmdType)
			assert.Equal(t, map[string]any{"opt": float64(0), "order": "GW123"}, sent[0].data(t))
		})
	}

	t.Run("UnknownCode", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)
		rec := switchRecordWith(t, g, map[string]any{"runingMode": 4242})
		g.set(func() { g.switchRecord = rec })

		state, err := c.GetMode(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.ModeUnknown, state.Mode)
		assert.Nil(t, state.SOC)
		assert.Equal(t, 4242, state.RunningMode)
	})

	t.Run("MissingRunningMode", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)
		rec := switchRecordWith(t, g, map[string]any{"runingMode": nil})
		g.set(func() { g.switchRecord = rec })

		_, err := c.GetMode(context.Background())
		assert.ErrorContains(t, err, "runingMode")
	})

	t.Run("MissingSOC", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)
		rec := switchRecordWith(t, g, map[string]any{"touMinSoc": nil})
		g.set(func() { g.switchRecord = rec })

		_, err := c.GetMode(context.Background())
		assert.ErrorContains(t, err, "touMinSoc")
	})
}

func TestSetMode(t *testing.T) {
	t.Run("FormPayload", func(t *testing.T) {
		for _, tc := range []struct {
			mode     Mode
			currend  string
			workMode string
			soc      string
		}{
			{TimeOfUse(15), "105249", "1", "15"},
			{SelfConsumption(22.5), "122324", "2", "22.5"},
			{EmergencyBackup(100), "55842", "3", "100"},
		} {
			t.Run(string(tc.mode.Name), func(t *testing.T) {
				g := newFakeGateway(t)
				c := newTestClient(t, g)

				fr, err := c.SetMode(context.Background(), tc.mode)
				require.NoError(t, err)
				assert.Equal(t, 200, fr.Code)
				assert.True(t, fr.Success)

				g.mu.Lock()
				defer g.mu.Unlock()
				require.Len(t, g.forms, 1)
				form := g.forms[0]
				assert.Equal(t, tc.currend, form.Get("currendId"))
				assert.Equal(t, "GW123", form.Get("gatewayId"))
				assert.Equal(t, "EN_US", form.Get("lang"))
				assert.Equal(t, "1", form.Get("oldIndex"))
				assert.Equal(t, tc.soc, form.Get("soc"))
				assert.Equal(t, "0", form.Get("stromEn"))
				assert.Equal(t, tc.workMode, form.Get("workMode"))
				assert.Equal(t, "3", g.formHeaders[0].Get("optsource"))
				assert.Equal(t, "tok-1", g.formHeaders[0].Get(tokenHeader))
				assert.Empty(t, g.envelopes, "mode updates are not enveloped")
			})
		}
	})

	t.Run("VendorFailureIsReturned", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)
		g.set(func() { g.modeReply = Response{Code: 10009, Message: "gateway busy"} })

		fr, err := c.SetMode(context.Background(), SelfConsumption(20))
		require.NoError(t, err)
		assert.Equal(t, 10009, fr.Code)
		assert.Equal(t, "gateway busy", fr.Message)
		assert.False(t, fr.Success)
	})

	t.Run("RetriesOnExpiredToken", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)
		g.expire()

		fr, err := c.SetMode(context.Background(), EmergencyBackup(80))
		require.NoError(t, err)
		assert.Equal(t, 200, fr.Code)
		assert.Equal(t, 2, g.loginCount())
	})

	t.Run("InvalidSOC", func(t *testing.T) {
		for _, soc := range []float64{-1, 100.5} {
			g := newFakeGateway(t)
			c := newTestClient(t, g)

			_, err := c.SetMode(context.Background(), TimeOfUse(soc))
			assert.ErrorContains(t, err, "soc must be between 0 and 100")
			g.mu.Lock()
			assert.Empty(t, g.forms, "nothing is sent for an invalid soc")
			g.mu.Unlock()
		}
	})

	t.Run("UnknownMode", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)

		_, err := c.SetMode(context.Background(), Mode{Name: types.ModeUnknown})
		assert.ErrorContains(t, err, "unknown mode")
	})
}

func TestGetSwitchState(t *testing.T) {
	t.Run("FromProLoad", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)

		sw, err := c.GetSwitchState(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.Switches{true, false, true}, sw)
	})

	t.Run("WrongLength", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)
		g.set(func() { g.status["pro_load"] = []int{1, 0} })

		_, err := c.GetSwitchState(context.Background())
		assert.ErrorContains(t, err, "expected 3 pro_load entries, got 2")
	})

	t.Run("Missing", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)
		g.set(func() { delete(g.status, "pro_load") })

		_, err := c.GetSwitchState(context.Background())
		assert.ErrorContains(t, err, "pro_load")
	})
}

func TestSetSwitchState(t *testing.T) {
	t.Run("WritesOnlyRequestedSlots", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)

		res, err := c.SetSwitchState(context.Background(), types.SwitchState{types.On(), nil, types.Off()})
		require.NoError(t, err)
		assert.NotNil(t, res)

		sent := g.sent()
		require.Len(t, sent, 2, "read then write")
		assert.Equal(t, map[string]any{"opt": float64(0), "order": "GW123"}, sent[0].data(t))

		writes := g.switchWrites()
		require.Len(t, writes, 1)
		w := writes[0]
		assert.Equal(t, float64(1), w["opt"])
		assert.NotContains(t, w, "modeChoose")
		assert.NotContains(t, w, "result")

		assert.Equal(t, float64(1), w["Sw1MsgType"])
		assert.Equal(t, float64(1), w["Sw1Mode"])
		assert.Equal(t, float64(0), w["Sw1ProLoad"])

		// untouched
		assert.Equal(t, float64(0), w["Sw2MsgType"])
		assert.Equal(t, float64(1), w["Sw2Mode"])
		assert.Equal(t, float64(0), w["Sw2ProLoad"])

		assert.Equal(t, float64(1), w["Sw3MsgType"])
		assert.Equal(t, float64(0), w["Sw3Mode"])
		assert.Equal(t, float64(1), w["Sw3ProLoad"])

		assert.Equal(t, float64(105249), w["runingMode"])
		assert.Equal(t, float64(0), w["SwMerge"])
	})

	t.Run("PreservesNumbers", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)

		_, err := c.SetSwitchState(context.Background(), types.SwitchState{nil, types.On(), nil})
		require.NoError(t, err)

		sent := g.sent()
		require.Len(t, sent, 2)
		assert.True(t, strings.Contains(string(sent[1].DataArea), `"serial":12345678901234567`),
			"large integers must be written back exactly: %s", sent[1].DataArea)
	})

	t.Run("MergedConflict", func(t *testing.T) {
		for _, desired := range []types.SwitchState{
			{types.On(), types.Off(), nil},
			{types.On(), nil, nil},
			{nil, types.Off(), types.On()},
		} {
			g := newFakeGateway(t)
			c := newTestClient(t, g)
			rec := switchRecordWith(t, g, map[string]any{"SwMerge": 1})
			g.set(func() { g.switchRecord = rec })

			_, err := c.SetSwitchState(context.Background(), desired)
			assert.ErrorIs(t, err, ErrSwitchesMerged)
			assert.Len(t, g.sent(), 1, "only the read is sent")
			assert.Empty(t, g.switchWrites())
		}
	})

	t.Run("MergedSameValue", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)
		rec := switchRecordWith(t, g, map[string]any{"SwMerge": 1})
		g.set(func() { g.switchRecord = rec })

		_, err := c.SetSwitchState(context.Background(), types.SwitchState{types.Off(), types.Off(), types.On()})
		require.NoError(t, err)

		writes := g.switchWrites()
		require.Len(t, writes, 1)
		assert.Equal(t, float64(0), writes[0]["Sw1Mode"])
		assert.Equal(t, float64(0), writes[0]["Sw2Mode"])
		assert.Equal(t, float64(1), writes[0]["Sw3Mode"])
	})

	t.Run("MergedUntouched", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)
		rec := switchRecordWith(t, g, map[string]any{"SwMerge": 1})
		g.set(func() { g.switchRecord = rec })

		_, err := c.SetSwitchState(context.Background(), types.SwitchState{nil, nil, types.Off()})
		require.NoError(t, err)
		assert.Len(t, g.switchWrites(), 1)
	})

	t.Run("MergedFlagMissing", func(t *testing.T) {
		for _, tc := range []struct {
			name   string
			fields map[string]any
		}{
			{"Absent", map[string]any{"SwMerge": nil}},
			{"Bool", map[string]any{"SwMerge": true}},
			{"Object", map[string]any{"SwMerge": map[string]any{}}},
		} {
			t.Run(tc.name, func(t *testing.T) {
				g := newFakeGateway(t)
				c := newTestClient(t, g)
				rec := switchRecordWith(t, g, tc.fields)
				g.set(func() { g.switchRecord = rec })

				_, err := c.SetSwitchState(context.Background(), types.SwitchState{types.On(), types.Off(), nil})
				assert.ErrorIs(t, err, ErrMergeFlagMissing)
				assert.Empty(t, g.switchWrites())
			})
		}
	})

	t.Run("MergedFlagNull", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)
		g.set(func() { g.switchRecord = strings.Replace(g.switchRecord, `"SwMerge":0`, `"SwMerge":null`, 1) })

		_, err := c.SetSwitchState(context.Background(), types.SwitchState{types.On(), nil, nil})
		assert.ErrorIs(t, err, ErrMergeFlagMissing)
		assert.Empty(t, g.switchWrites())
	})

	t.Run("ReadFailure", func(t *testing.T) {
		g := newFakeGateway(t)
		c := newTestClient(t, g)
		g.set(func() { g.mqttCodes = []int{136} })

		_, err := c.SetSwitchState(context.Background(), types.SwitchState{types.On(), nil, nil})
		assert.ErrorIs(t, err, ErrGatewayOffline)
		assert.Empty(t, g.switchWrites())
	})
}

func TestModeByName(t *testing.T) {
	for _, name := range types.ModeNames() {
		m, err := ModeByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, m.Name)
		assert.NoError(t, m.validate())
		assert.Contains(t, modeSOCField, name)
	}

	_, err := ModeByName(types.ModeUnknown)
	assert.Error(t, err)

	m := TimeOfUse(40)
	assert.Equal(t, 40.0, m.SOC)
	assert.Equal(t, 105249, m.CurrentID)
	assert.Equal(t, 15.0, modeDefaults[types.ModeTimeOfUse].SOC, "WithSOC must not modify the defaults")

	// every reported code maps to a settable mode
	for code, name := range modeCodes {
		_, ok := modeDefaults[name]
		assert.True(t, ok, "code %d", code)
	}
}
