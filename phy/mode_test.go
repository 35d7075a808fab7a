package phy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/vanet-simulator/internal/sched"
)

func TestConfigureStandardRateSets(t *testing.T) {
	cases := []struct {
		std       Standard
		nModes    int
		first     Mode
		freqAtCh1 float64
	}{
		{Standard80211a, 8, OfdmRate6Mbps, 5005},
		{Standard80211b, 4, DsssRate1Mbps, 2412},
		{Standard80211g, 12, DsssRate1Mbps, 2412},
		{Standard80211_10MHz, 8, OfdmRate3MbpsBW10MHz, 5005},
		{Standard80211_5MHz, 8, OfdmRate1_5MbpsBW5MHz, 5005},
		{StandardHolland, 5, OfdmRate6Mbps, 5005},
		{Standard80211pCCH, 8, OfdmRate3MbpsBW10MHz, 5005},
		{Standard80211pSCH, 8, OfdmRate3MbpsBW10MHz, 5005},
	}
	for _, tc := range cases {
		t.Run(tc.std.String(), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Standard = tc.std
			p, err := New("p", cfg, sched.NewSimulator())
			require.NoError(t, err)
			assert.Equal(t, tc.nModes, p.NModes())
			assert.Equal(t, tc.first, p.Mode(0))
			assert.InDelta(t, tc.freqAtCh1, p.ChannelFrequencyMHz(), 1e-9)
		})
	}
}

func TestStandardTextRoundTrip(t *testing.T) {
	var cfg struct {
		Standard Standard `yaml:"standard"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("standard: 802.11p-cch\n"), &cfg))
	assert.Equal(t, Standard80211pCCH, cfg.Standard)

	err := yaml.Unmarshal([]byte("standard: 802.11zz\n"), &cfg)
	assert.ErrorIs(t, err, ErrUnknownStandard)
}

func TestMcsModeMapping(t *testing.T) {
	for mcs := uint8(0); mcs < 8; mcs++ {
		for _, gi := range []bool{false, true} {
			for _, bonding := range []bool{false, true} {
				m := McsToMode(mcs, gi, bonding)
				assert.Equal(t, mcs, ModeToMcs(m))
				byName, ok := ModeByName(m.Name)
				require.True(t, ok, m.Name)
				assert.Equal(t, m, byName)
			}
		}
	}
	assert.Equal(t, "OfdmRate65MbpsBW20MHz", McsToMode(7, false, false).Name)
	assert.Equal(t, "OfdmRate72_2MbpsBW20MHzShGi", McsToMode(7, true, false).Name)
	assert.Equal(t, "OfdmRate150MbpsBW40MHzShGi", McsToMode(7, true, true).Name)
	assert.Equal(t, uint8(0), ModeToMcs(OfdmRate54Mbps))
	assert.Len(t, HTMandatoryModes(), 8)
}

func TestTxDurations(t *testing.T) {
	cases := []struct {
		name     string
		size     uint32
		v        TxVector
		preamble Preamble
		want     time.Duration
	}{
		// 32 + 8 + ceil(822/48)=18 symbols of 8 µs.
		{"ofdm 10MHz", 100, TxVector{Mode: OfdmRate6MbpsBW10MHz}, PreambleLong, 184 * time.Microsecond},
		// 144 + 48 + 800 µs.
		{"dsss long", 100, TxVector{Mode: DsssRate1Mbps}, PreambleLong, 992 * time.Microsecond},
		// 72 + 24 + ceil(800/11)=73 µs.
		{"dsss short", 100, TxVector{Mode: DsssRate11Mbps}, PreambleShort, 169 * time.Microsecond},
		// 16 + 4 + 35·4 + 6 µs signal extension.
		{"erp-ofdm", 100, TxVector{Mode: ErpOfdmRate6Mbps}, PreambleLong, 166 * time.Microsecond},
		// 16 + (4+8+4+4) + ceil(822/26)=32 symbols of 4 µs.
		{"ht mixed", 100, TxVector{Mode: McsToMode(0, false, false)}, PreambleHTMixed, 164 * time.Microsecond},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CalculateTxDuration(tc.size, tc.v, tc.preamble))
		})
	}
}

func TestCalculateSnrInvertsAwgnModel(t *testing.T) {
	model := AwgnErrorRateModel{}
	for _, m := range []Mode{OfdmRate6Mbps, OfdmRate24Mbps, OfdmRate54Mbps} {
		snr := CalculateSnr(model, m, 1e-5)
		ber := 1 - model.ChunkSuccessRate(m, snr*1.001, 1)
		assert.LessOrEqual(t, ber, 1e-5, m.Name)
		ber = 1 - model.ChunkSuccessRate(m, snr*0.999, 1)
		assert.Greater(t, ber, 1e-5, m.Name)
	}
	// Denser constellations need more SNR.
	assert.Less(t, CalculateSnr(model, OfdmRate6Mbps, 1e-5), CalculateSnr(model, OfdmRate54Mbps, 1e-5))
}

func TestAwgnSuccessIsMonotonicInSnr(t *testing.T) {
	model := AwgnErrorRateModel{}
	prev := 0.0
	for db := -5.0; db <= 30; db += 1 {
		cur := model.ChunkSuccessRate(OfdmRate24Mbps, DbToRatio(db), 1000)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
	assert.Equal(t, 1.0, model.ChunkSuccessRate(OfdmRate24Mbps, 0, 0))
}
