package economy

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTerracare_Amount_Parse(t *testing.T) {
	t.Parallel()

	t.Run("whole units", func(t *testing.T) {
		t.Parallel()
		a, err := ParseAmount("250")
		require.NoError(t, err)
		require.Equal(t, "250", a.String())
		require.Equal(t, 0, a.Cmp(Units(250)))
	})

	t.Run("fractional", func(t *testing.T) {
		t.Parallel()
		a, err := ParseAmount("12.5")
		require.NoError(t, err)
		require.Equal(t, "12.5", a.String())
	})

	t.Run("max precision", func(t *testing.T) {
		t.Parallel()
		a, err := ParseAmount("0.000000000000000001")
		require.NoError(t, err)
		require.Equal(t, "1", a.BaseUnits().String())
	})

	t.Run("too many fractional digits", func(t *testing.T) {
		t.Parallel()
		_, err := ParseAmount("1.0000000000000000001")
		require.Error(t, err)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		t.Parallel()
		for _, s := range []string{"", "-1", "1e5", "abc", "1.2.3"} {
			_, err := ParseAmount(s)
			require.Error(t, err, "input %q", s)
		}
	})
}

func TestTerracare_Amount_Arithmetic(t *testing.T) {
	t.Parallel()

	t.Run("sub refuses negative results", func(t *testing.T) {
		t.Parallel()
		_, err := Units(1).Sub(Units(2))
		require.Error(t, err)

		got, err := Units(5).Sub(Units(2))
		require.NoError(t, err)
		require.Equal(t, 0, got.Cmp(Units(3)))
	})

	t.Run("floor to multiple", func(t *testing.T) {
		t.Parallel()
		got := Units(250).FloorToMultiple(Units(100))
		require.Equal(t, 0, got.Cmp(Units(200)))

		got = Units(99).FloorToMultiple(Units(100))
		require.True(t, got.IsZero())
	})

	t.Run("div floors", func(t *testing.T) {
		t.Parallel()
		// 100 units split 3 ways leaves one base unit unassigned.
		per := Units(100).DivUint(3)
		distributed := per.MulUint(3)
		rem, err := Units(100).Sub(distributed)
		require.NoError(t, err)
		require.Equal(t, "1", rem.BaseUnits().String())
	})

	t.Run("per-unit price", func(t *testing.T) {
		t.Parallel()
		// 3 units at 2.5 per unit pays 7.5.
		price, err := ParseAmount("2.5")
		require.NoError(t, err)
		got := Units(3).MulPerUnit(price)
		require.Equal(t, "7.5", got.String())
	})

	t.Run("zero value is usable", func(t *testing.T) {
		t.Parallel()
		var a Amount
		require.True(t, a.IsZero())
		require.Equal(t, "0", a.String())
		require.Equal(t, 0, a.Add(Units(4)).Cmp(Units(4)))
	})
}

func TestTerracare_Amount_JSON(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(Units(42))
	require.NoError(t, err)
	require.Equal(t, `"42"`, string(raw))

	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`"12.75"`), &a))
	require.Equal(t, "12.75", a.String())

	require.Error(t, json.Unmarshal([]byte(`"-3"`), &a))
}

func TestTerracare_Amount_FromBaseUnits(t *testing.T) {
	t.Parallel()

	a, err := FromBaseUnits(big.NewInt(1_000_000))
	require.NoError(t, err)
	require.Equal(t, "1000000", a.BaseUnits().String())

	_, err = FromBaseUnits(big.NewInt(-1))
	require.Error(t, err)
}
