package domain

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApportion_RateDuel(t *testing.T) {
	// A 5/5, B 3/5, ppr=5 → lead=2, pool=10
	got := Apportion(ApportionInput{
		Pool:     10,
		Winners:  []string{"A"},
		Losers:   []string{"B"},
		Balances: map[string]int{"A": 0, "B": 40},
	})

	assert.Equal(t, 10, got.Deltas["A"])
	assert.Equal(t, -10, got.Deltas["B"])
	assert.Equal(t, 10, got.Collected)
	assert.Equal(t, 0, got.Total())
}

func TestApportion_WagerFourParticipants(t *testing.T) {
	got := Apportion(ApportionInput{
		Pool:      80,
		WagerMode: true,
		Wager:     20,
		Winners:   []string{"W"},
		Losers:    []string{"L1", "L2", "L3"},
		Balances:  map[string]int{"W": 5, "L1": 100, "L2": 20, "L3": 50},
	})

	assert.Equal(t, -20, got.Deltas["L1"])
	assert.Equal(t, -20, got.Deltas["L2"])
	assert.Equal(t, -20, got.Deltas["L3"])
	// el stake del ganador se le devuelve: neto = stakes de los perdedores
	assert.Equal(t, 60, got.Deltas["W"])
	assert.Equal(t, 0, got.Total())
}

func TestApportion_DebitCappedByBalance(t *testing.T) {
	got := Apportion(ApportionInput{
		Pool:     30,
		Winners:  []string{"W"},
		Losers:   []string{"L1", "L2"},
		Balances: map[string]int{"L1": 100, "L2": 4},
	})

	assert.Equal(t, -15, got.Deltas["L1"])
	assert.Equal(t, -4, got.Deltas["L2"], "never more than the balance")
	assert.Equal(t, 19, got.Collected)
	assert.Equal(t, 19, got.Deltas["W"])
}

func TestApportion_NegativeBalanceTreatedAsZero(t *testing.T) {
	got := Apportion(ApportionInput{
		Pool:     10,
		Winners:  []string{"W"},
		Losers:   []string{"L"},
		Balances: map[string]int{"L": -7},
	})

	assert.Equal(t, 0, got.Deltas["L"])
	assert.Equal(t, 0, got.Deltas["W"])
	assert.Empty(t, got.Credits)
}

func TestApportion_RemainderToRichestLoser(t *testing.T) {
	// 11 / 3 = 3 r2 → richest loser pays 5
	got := Apportion(ApportionInput{
		Pool:     11,
		Winners:  []string{"W"},
		Losers:   []string{"L1", "L2", "L3"},
		Balances: map[string]int{"L1": 10, "L2": 90, "L3": 10},
	})

	assert.Equal(t, -3, got.Deltas["L1"])
	assert.Equal(t, -5, got.Deltas["L2"])
	assert.Equal(t, -3, got.Deltas["L3"])
	assert.Equal(t, 11, got.Deltas["W"])
}

func TestApportion_RemainderToRichestWinner(t *testing.T) {
	got := Apportion(ApportionInput{
		Pool:     7,
		Winners:  []string{"W1", "W2"},
		Losers:   []string{"L"},
		Balances: map[string]int{"W1": 3, "W2": 8, "L": 50},
	})

	assert.Equal(t, 3, got.Credits["W1"])
	assert.Equal(t, 4, got.Credits["W2"])
	assert.Equal(t, -7, got.Deltas["L"])
}

func TestApportion_RemainderTieBreaksOnSmallestID(t *testing.T) {
	got := SplitLargestRemainder(5, []string{"b", "a"}, map[string]int{"a": 10, "b": 10})
	assert.Equal(t, 3, got["a"])
	assert.Equal(t, 2, got["b"])
}

func TestApportion_NoWinnersNoTransfer(t *testing.T) {
	got := Apportion(ApportionInput{
		Pool:     50,
		Losers:   []string{"A", "B"},
		Balances: map[string]int{"A": 100, "B": 100},
	})

	assert.Equal(t, map[string]int{"A": 0, "B": 0}, got.Deltas)
	assert.Zero(t, got.Collected)
}

func TestApportion_ZeroPool(t *testing.T) {
	got := Apportion(ApportionInput{
		Pool:     0,
		Winners:  []string{"A"},
		Losers:   []string{"B"},
		Balances: map[string]int{"B": 100},
	})
	assert.Equal(t, 0, got.Deltas["A"])
	assert.Equal(t, 0, got.Deltas["B"])
}

func TestApportion_Deterministic(t *testing.T) {
	in := ApportionInput{
		Pool:     23,
		Winners:  []string{"W1", "W2", "W3"},
		Losers:   []string{"L1", "L2"},
		Balances: map[string]int{"W1": 1, "W2": 1, "W3": 1, "L1": 12, "L2": 40},
	}
	first := Apportion(in)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Apportion(in))
	}
}

// Zero-sum y no-negatividad sobre entradas pseudoaleatorias.
func TestApportion_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 500; i++ {
		n := 2 + rng.IntN(7)
		ids := make([]string, n)
		balances := make(map[string]int, n)
		for j := range ids {
			ids[j] = fmt.Sprintf("p%d", j)
			balances[ids[j]] = rng.IntN(120) - 10
		}
		cut := 1 + rng.IntN(n-1)
		wager := rng.IntN(2) == 0

		in := ApportionInput{
			Pool:      rng.IntN(200),
			WagerMode: wager,
			Wager:     1 + rng.IntN(40),
			Winners:   ids[:cut],
			Losers:    ids[cut:],
			Balances:  balances,
		}
		got := Apportion(in)

		require.Equal(t, 0, got.Total(), "case %d: %+v", i, in)
		for _, id := range in.Losers {
			after := max(0, balances[id]) + got.Deltas[id]
			require.GreaterOrEqual(t, after, 0, "case %d loser %s", i, id)
			require.LessOrEqual(t, got.Deltas[id], 0)
		}
		for _, id := range in.Winners {
			require.GreaterOrEqual(t, got.Deltas[id], 0)
		}
		if !wager {
			require.LessOrEqual(t, got.Collected, in.Pool)
		}
	}
}
