package exchange

import "testing"

func TestExchangeError_IsBenign(t *testing.T) {
	t.Parallel()
	cases := []struct {
		code   int
		benign bool
	}{
		{CodeDuplicateOrder, true},
		{CodeUnknownOrder, true},
		{-1013, false},
		{0, false},
	}
	for _, tc := range cases {
		err := &ExchangeError{Code: tc.code, Msg: "x"}
		if err.IsBenign() != tc.benign {
			t.Errorf("code %d: IsBenign() = %v, want %v", tc.code, err.IsBenign(), tc.benign)
		}
	}
}

func TestDecodeError_Unwraps(t *testing.T) {
	t.Parallel()
	cause := &ExchangeError{Code: -1, Msg: "bad json"}
	err := &DecodeError{Cause: cause}
	if err.Unwrap() != cause {
		t.Error("Unwrap should return the wrapped cause")
	}
}
