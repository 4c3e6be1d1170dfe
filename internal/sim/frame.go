package sim

import (
	"encoding/json"

	"github.com/pkg/errors"

	"vectornav-ng/internal/vn"
)

// frameMagic tags simulator frames so foreign payloads are rejected.
const frameMagic = "vnsim/1"

type frame struct {
	Magic string           `json:"magic"`
	Seq   uint64           `json:"seq"`
	Data  vn.CompositeData `json:"data"`
}

func encodeFrame(seq uint64, cd vn.CompositeData) ([]byte, error) {
	return json.Marshal(frame{Magic: frameMagic, Seq: seq, Data: cd})
}

func decodeFrame(b []byte) (uint64, vn.CompositeData, error) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return 0, vn.CompositeData{}, errors.Wrapf(vn.ErrDecode, "%v", err)
	}
	if f.Magic != frameMagic {
		return 0, vn.CompositeData{}, errors.Wrapf(vn.ErrDecode, "bad magic %q", f.Magic)
	}
	return f.Seq, f.Data, nil
}
