package engine

import "testing"

// Both levels inside the range: the path assumption breaks the tie.
func TestResolveExitBothTouchedNeutral(t *testing.T) {
	c := Candle{OpenTime: 0, Open: 100, High: 110, Low: 90, Close: 105}
	if resolveExit(SideLong, c, 108, 95, PathNeutral) != TouchSL {
		t.Fatal("neutral path must resolve SL first")
	}
}

func TestResolveExitBothTouchedOptimistic(t *testing.T) {
	c := Candle{OpenTime: 0, Open: 100, High: 110, Low: 90, Close: 105}
	if resolveExit(SideLong, c, 108, 95, PathOptimistic) != TouchTP {
		t.Fatal("optimistic path must resolve TP first")
	}
}

func TestResolveExitRealisticFollowsDirection(t *testing.T) {
	up := Candle{OpenTime: 0, Open: 100, High: 110, Low: 90, Close: 105}
	down := Candle{OpenTime: 0, Open: 100, High: 110, Low: 90, Close: 95}

	// Long: TP above the open, SL below. Up candle reaches the upper level
	// first; down candle the lower.
	if resolveExit(SideLong, up, 108, 95, PathRealistic) != TouchTP {
		t.Fatal("up candle: long TP first")
	}
	if resolveExit(SideLong, down, 108, 95, PathRealistic) != TouchSL {
		t.Fatal("down candle: long SL first")
	}

	// Short: TP below the open, SL above.
	if resolveExit(SideShort, up, 92, 107, PathRealistic) != TouchSL {
		t.Fatal("up candle: short SL first")
	}
	if resolveExit(SideShort, down, 92, 107, PathRealistic) != TouchTP {
		t.Fatal("down candle: short TP first")
	}
}

func TestResolveExitSingleLevel(t *testing.T) {
	c := Candle{OpenTime: 0, Open: 100, High: 110, Low: 99, Close: 105}
	if resolveExit(SideLong, c, 108, 95, PathNeutral) != TouchTP {
		t.Fatal("only TP inside the range")
	}
	c = Candle{OpenTime: 0, Open: 100, High: 101, Low: 90, Close: 95}
	if resolveExit(SideLong, c, 108, 95, PathOptimistic) != TouchSL {
		t.Fatal("only SL inside the range; path must not matter")
	}
}

func TestResolveExitZeroLevelsDisarmed(t *testing.T) {
	c := Candle{OpenTime: 0, Open: 100, High: 110, Low: 90, Close: 105}
	if resolveExit(SideLong, c, 0, 0, PathNeutral) != TouchNone {
		t.Fatal("zero levels must never touch")
	}
	if resolveExit(SideLong, c, 108, 0, PathNeutral) != TouchTP {
		t.Fatal("zero SL leaves TP armed")
	}
}

func TestResolveExitDeterministic(t *testing.T) {
	c := Candle{OpenTime: 0, Open: 100, High: 110, Low: 90, Close: 105}
	first := resolveExit(SideLong, c, 108, 95, PathRealistic)
	for i := 0; i < 100; i++ {
		if resolveExit(SideLong, c, 108, 95, PathRealistic) != first {
			t.Fatal("same input must always resolve the same touch")
		}
	}
}
