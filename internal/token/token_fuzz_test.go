package token

import (
	"testing"
)

// FuzzDecode verifies that decoding never panics on arbitrary input and that
// every accepted payload re-encodes to exactly the input.
func FuzzDecode(f *testing.F) {
	f.Add("")
	f.Add("file_" + Mint())
	f.Add("batch_" + Mint())
	f.Add("file_")
	f.Add("_" + Mint())
	f.Add("file_00000000000000000000000000000000")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, payload string) {
		kind, id, err := Decode(payload)
		if err != nil {
			return
		}
		if len(payload) > MaxPayloadLen {
			t.Errorf("accepted payload over length limit: %d bytes", len(payload))
		}
		if Encode(kind, id) != payload {
			t.Errorf("accepted payload does not round-trip: %q", payload)
		}
	})
}
