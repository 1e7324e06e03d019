package dialect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlbitools/dbbc3/board"
)

// fakeTx replays canned device replies and records the commands sent.
type fakeTx struct {
	t       testing.TB
	replies map[string]string
	sent    []string
}

func newFakeTx(t testing.TB, replies map[string]string) *fakeTx {
	return &fakeTx{t: t, replies: replies}
}

func (f *fakeTx) SendCommand(cmd string) (string, error) {
	f.sent = append(f.sent, cmd)
	raw, ok := f.replies[cmd]
	if !ok {
		f.t.Fatalf("unexpected command %q", cmd)
	}
	return raw, nil
}

func TestOpVersion(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		raw    string
		expect VersionInfo
	}{
		{"ddc_v", "version/ DDC_V,124,October 01 2019;",
			VersionInfo{Mode: "DDC_V", Major: 124, Minor: 191001, MinorString: "October 01 2019"}},
		{"ordinal day", "version/ DDC_V,124,February 18th 2020;",
			VersionInfo{Mode: "DDC_V", Major: 124, Minor: 200218, MinorString: "February 18th 2020"}},
		{"no semicolon", "version/ OCT_D,110,July 03 2019",
			VersionInfo{Mode: "OCT_D", Major: 110, Minor: 190703, MinorString: "July 03 2019"}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			tx := newFakeTx(t, map[string]string{"version": c.raw})
			v, err := opVersion(tx)
			require.NoError(t, err)
			assert.Equal(t, c.expect, *v)
		})
	}
}

func TestOpVersionGarbage(t *testing.T) {
	t.Parallel()

	tx := newFakeTx(t, map[string]string{"version": "?;"})
	_, err := opVersion(tx)
	require.Error(t, err)
	assert.True(t, IsParse(err))
}

func TestOpTime(t *testing.T) {
	t.Parallel()

	raw := "time/\n" +
		"FiLa10G board 1\n" +
		"seconds=2519;\n" +
		"halfYearsSince2000=38;\n" +
		"daysSince2000=6969;\n" +
		"2019-01-30T13:32:08\n" +
		"FiLa10G board 2\n" +
		"seconds=2520;\n" +
		"halfYearsSince2000=38;\n" +
		"daysSince2000=6969;\n" +
		"2019-01-30T13:32:09\n"
	tx := newFakeTx(t, map[string]string{"time": raw})
	bts, err := opTime(tx)
	require.NoError(t, err)
	// the entry after the last separator is reported too
	require.Len(t, bts, 2)
	assert.Equal(t, 2519, bts[0].Seconds)
	assert.Equal(t, 38, bts[0].HalfYearsSince2000)
	assert.Equal(t, 6969, bts[0].DaysSince2000)
	require.True(t, bts[0].HasTimestamp)
	assert.Equal(t, time.Date(2019, 1, 30, 13, 32, 8, 0, time.UTC), bts[0].Timestamp)
	assert.Equal(t, 2520, bts[1].Seconds)
}

func TestOpTimeEmpty(t *testing.T) {
	t.Parallel()

	tx := newFakeTx(t, map[string]string{"time": "time/\n"})
	_, err := opTime(tx)
	require.Error(t, err)
	assert.True(t, IsParse(err))
}

func TestOpIFLevel(t *testing.T) {
	t.Parallel()

	tx := newFakeTx(t, map[string]string{"dbbcifc": "dbbcifc/ 2,20,agc,1,32031,32000;"})
	lvl, err := opIFLevel(tx, board.ID(2))
	require.NoError(t, err)
	assert.Equal(t, 2, lvl.InputType)
	assert.Equal(t, 20, lvl.Attenuation)
	assert.Equal(t, "agc", lvl.Mode)
	assert.Equal(t, 32031, lvl.Count)
	assert.Equal(t, 32000, lvl.Target)
}

func TestOpSamplerPower(t *testing.T) {
	t.Parallel()

	raw := "core3h=1,core3_power\n" +
		"Power at sampler 0 = 65053929\n" +
		"Power at sampler 1 = 65792668\n" +
		"Power at sampler 2 = 66029064\n" +
		"Power at sampler 3 = 65132867\n"
	tx := newFakeTx(t, map[string]string{"core3h=1,core3_power": raw})
	pow, err := opSamplerPower(tx, board.ID(0))
	require.NoError(t, err)
	assert.Equal(t, []int64{65053929, 65792668, 66029064, 65132867}, pow)
}

func TestOpSamplerPowerNotConnected(t *testing.T) {
	t.Parallel()

	tx := newFakeTx(t, map[string]string{"core3h=5,core3_power": "core3h=5\nBoard not connected;\n"})
	_, err := opSamplerPower(tx, board.ID(4))
	require.Error(t, err)
	assert.True(t, IsParse(err))
}

func TestOpSamplerStats(t *testing.T) {
	t.Parallel()

	raw := "core3h=2,core3_bstat 0\n" +
		`P("00") = 9.97% (6381415)` + "\n" +
		`P("01") = 39.95% (25571012)` + "\n" +
		`P("10") = 40.44% (25882884)` + "\n" +
		`P("11") = 9.64% (6171370)` + "\n"
	tx := newFakeTx(t, map[string]string{"core3h=2,core3_bstat 0": raw})
	stats, err := opSamplerStats(tx, board.ID(1), 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{6381415, 25571012, 25882884, 6171370}, stats)
}

func TestOpSamplerStatsBadSampler(t *testing.T) {
	t.Parallel()

	tx := newFakeTx(t, nil)
	_, err := opSamplerStats(tx, board.ID(0), 4)
	require.Error(t, err)
	assert.Empty(t, tx.sent)
}

func TestOpSamplerCorr(t *testing.T) {
	t.Parallel()

	raw := "core3h=1,core3_corr\n" +
		"Correlation board 1:\n" +
		"[0-1]: 157322344\n" +
		"[1-2]: 155710069\n" +
		"[2-3]: 158944035;\n"
	tx := newFakeTx(t, map[string]string{"core3h=1,core3_corr": raw})
	corr, err := opSamplerCorr(tx, board.ID(0))
	require.NoError(t, err)
	assert.Equal(t, []int64{157322344, 155710069, 158944035}, corr)
}

func TestOpSynthLock(t *testing.T) {
	t.Parallel()

	raw := "synth=2,lock\nS1 locked\nS2 not locked;\n"
	replies := map[string]string{"synth=2,lock": raw}

	// boards C and D share synthesizer 2
	locked, err := opSynthLock(newFakeTx(t, replies), board.ID(2))
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = opSynthLock(newFakeTx(t, replies), board.ID(3))
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestOpSynthLockMissing(t *testing.T) {
	t.Parallel()

	tx := newFakeTx(t, map[string]string{"synth=1,lock": "synth=1,lock\nS1 locked;\n"})
	_, err := opSynthLock(tx, board.ID(1))
	require.Error(t, err)
	assert.True(t, IsParse(err))
}

func TestOpSynthFreq(t *testing.T) {
	t.Parallel()

	tx := newFakeTx(t, map[string]string{
		"synth=1,source 2": "synth=1,source 2;",
		"synth=1,cw":       "synth=1,cw\nF 4524 MHz; // Act 4524 MHz\n",
	})
	f, err := opSynthFreq(tx, board.ID(1))
	require.NoError(t, err)
	// reported values are half the effective LO frequency
	assert.Equal(t, 9048, f.TargetMHz)
	assert.Equal(t, 9048, f.ActualMHz)
	require.Len(t, tx.sent, 2)
	assert.Equal(t, "synth=1,source 2", tx.sent[0])
}

func TestOpRegRead(t *testing.T) {
	t.Parallel()

	raw := "core3h=1,regread core3 2\n0xBFBFBFBF / 0b10111111101111111011111110111111 / -1077952577;\n"
	tx := newFakeTx(t, map[string]string{"core3h=1,regread core3 2": raw})
	v, err := opRegRead(tx, board.ID(0), "core3", 2)
	require.NoError(t, err)
	assert.Equal(t, "0xBFBFBFBF", v.Hex)
	assert.Equal(t, int64(-1077952577), v.Dec)
}

func TestOpRegWrite(t *testing.T) {
	t.Parallel()

	cmd := "core3h=1,regwrite core3 11 0x00000001"
	tx := newFakeTx(t, map[string]string{cmd: "core3h=1,regwrite core3 11 0x00000001;\n"})
	changed, err := opRegWrite(tx, board.ID(0), "core3", 11, 1)
	require.NoError(t, err)
	assert.True(t, changed)

	tx = newFakeTx(t, map[string]string{cmd: "register unmodified;\n"})
	changed, err = opRegWrite(tx, board.ID(0), "core3", 11, 1)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestOpEnableCal(t *testing.T) {
	t.Parallel()

	raw := "Calibration enabled:\nthreshold=ON\ngain=OFF\noffset=OFF;\n"
	tx := newFakeTx(t, map[string]string{"enablecal=on,off,off": raw})
	cs, err := opEnableCal(tx, "on", "OFF", "off")
	require.NoError(t, err)
	assert.Equal(t, &CalSettings{Threshold: "on", Gain: "off", Offset: "off"}, cs)
}

func TestOpEnableCalMismatch(t *testing.T) {
	t.Parallel()

	raw := "Calibration enabled:\nthreshold=OFF\ngain=OFF\noffset=OFF;\n"
	tx := newFakeTx(t, map[string]string{"enablecal=on,off,off": raw})
	_, err := opEnableCal(tx, "on", "off", "off")
	require.Error(t, err)
	assert.True(t, IsParse(err))
}

func TestOpEnableCalBadSwitch(t *testing.T) {
	t.Parallel()

	tx := newFakeTx(t, nil)
	_, err := opEnableCal(tx, "maybe", "off", "off")
	require.Error(t, err)
	assert.Empty(t, tx.sent)
}

func TestOpCheckPhase(t *testing.T) {
	t.Parallel()

	tx := newFakeTx(t, map[string]string{"checkphase": "checkphase\nall boards in sync;\n"})
	ok, err := opCheckPhase(tx)
	require.NoError(t, err)
	assert.True(t, ok)

	tx = newFakeTx(t, map[string]string{"checkphase": "checkphase\nboard 3 out of sync;\n"})
	ok, err = opCheckPhase(tx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpTimeSync(t *testing.T) {
	t.Parallel()

	raw := "core3h=1,timesync\ntimesync succeeded\nseconds=2519;\nhalfYearsSince2000=38;\n"
	tx := newFakeTx(t, map[string]string{"core3h=1,timesync": raw})
	ts, err := opTimeSync(tx, board.ID(0))
	require.NoError(t, err)
	require.True(t, ts.Success)
	expect := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC).Add(2519 * time.Second)
	assert.Equal(t, expect, ts.Timestamp)
}

func TestOpTimeSyncFailed(t *testing.T) {
	t.Parallel()

	tx := newFakeTx(t, map[string]string{"core3h=1,timesync": "core3h=1,timesync\ntimesync failed;\n"})
	ts, err := opTimeSync(tx, board.ID(0))
	require.NoError(t, err)
	assert.False(t, ts.Success)
}
