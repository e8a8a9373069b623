package franklin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"time"
)

// Command types understood by the gateway.
const (
	cmdTypeStatus = 203
	cmdTypeSwitch = 311
)

const envelopeLang = "EN_US"

// dataAreaPlaceholder is spliced out of the marshaled envelope and replaced by
// the raw inner payload.
var dataAreaPlaceholder = []byte(`"dataArea":"DATA"`)

type envelope struct {
	Lang      string `json:"lang"`
	CmdType   int    `json:"cmdType"`
	EquipNo   string `json:"equipNo"`
	Type      int    `json:"type"`
	TimeStamp int64  `json:"timeStamp"`
	Snno      uint64 `json:"snno"`
	Len       int    `json:"len"`
	CRC       string `json:"crc"`
	DataArea  string `json:"dataArea"`
}

// checksum renders the IEEE CRC-32 of b as 8 uppercase hex digits.
func checksum(b []byte) string {
	return fmt.Sprintf("%08X", crc32.ChecksumIEEE(b))
}

// buildEnvelope frames data for the sendMqtt endpoint. The inner payload is
// marshaled exactly once; len and crc are computed over those bytes and the
// same bytes are embedded verbatim as the dataArea value.
func buildEnvelope(cmdType int, gatewayID string, snno uint64, ts time.Time, data any) ([]byte, error) {
	blob, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command data: %w", err)
	}

	outer, err := json.Marshal(envelope{
		Lang:      envelopeLang,
		CmdType:   cmdType,
		EquipNo:   gatewayID,
		Type:      0,
		TimeStamp: ts.Unix(),
		Snno:      snno,
		Len:       len(blob),
		CRC:       checksum(blob),
		DataArea:  "DATA",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	// string fields are escaped by the encoder so only our own field can match
	if bytes.Count(outer, dataAreaPlaceholder) != 1 {
		return nil, errors.New("envelope placeholder not found")
	}
	replacement := make([]byte, 0, len(`"dataArea":`)+len(blob))
	replacement = append(replacement, `"dataArea":`...)
	replacement = append(replacement, blob...)
	return bytes.Replace(outer, dataAreaPlaceholder, replacement, 1), nil
}
