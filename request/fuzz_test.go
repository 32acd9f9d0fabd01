package request

import "testing"

func FuzzParse(f *testing.F) {
	f.Add("get foo")
	f.Add("set k 0 0 5")
	f.Add("set k 0 0 5 noreply")
	f.Add("cas k 0 0 3 42")
	f.Add("mg foo v t c Omytoken")
	f.Add("ms foo 5 T60 F1")
	f.Add("mn")
	f.Add("")
	f.Add("set k 0 0 -1")
	f.Add("set k 0 0 99999999999999999999")

	f.Fuzz(func(t *testing.T, line string) {
		req, err := Parse([]byte(line))
		if err != nil {
			return
		}
		if req.VLen < 0 || req.VLen > MaxValueLen+2 {
			t.Errorf("vlen out of range: %d", req.VLen)
		}
	})
}
