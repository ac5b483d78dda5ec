package h264

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	// 1920x1080 high profile SPS
	testSPS = []byte{
		0x67, 0x64, 0x00, 0x28, 0xac, 0xd9, 0x40, 0x78,
		0x02, 0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00,
		0x04, 0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60,
		0xc6, 0x58,
	}
	testPPS = []byte{0x68, 0xcb, 0x83, 0xcb, 0x20}
	testIDR = []byte{0x65, 0x88, 0x84, 0x00, 0x33}
	testP   = []byte{0x41, 0x9a, 0x02, 0x04}
	testAUD = []byte{0x09, 0xf0}
	testSEI = []byte{0x06, 0x05, 0x01, 0x00, 0x80}
)

func annexB(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		out = append(out, 0, 0, 0, 1)
		out = append(out, n...)
	}
	return out
}

func TestSplitAnnexB(t *testing.T) {
	nalus, err := SplitAnnexB(annexB(testSPS, testPPS, testIDR))
	require.NoError(t, err)
	require.Len(t, nalus, 3)
	assert.Equal(t, testIDR, nalus[2])

	sps, pps := ParameterSets(nalus)
	assert.Equal(t, testSPS, sps)
	assert.Equal(t, testPPS, pps)
}

func TestFrameNALUs(t *testing.T) {
	tests := []struct {
		name  string
		in    [][]byte
		count int
		key   bool
	}{
		{"idr with parameter sets", [][]byte{testAUD, testSPS, testPPS, testIDR}, 1, true},
		{"p slice", [][]byte{testAUD, testP}, 1, false},
		{"parameter sets only", [][]byte{testSPS, testPPS}, 0, false},
		{"sei before idr", [][]byte{testAUD, testSEI, testIDR}, 2, true},
		{"sei before p slice", [][]byte{testSEI, testP}, 2, false},
		{"sei only", [][]byte{testSEI}, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FrameNALUs(tt.in)
			assert.Len(t, out, tt.count)
			assert.Equal(t, tt.key, IsKeyFrame(out))
		})
	}
}

func TestAVCC(t *testing.T) {
	out, err := AVCC([][]byte{testIDR, testP})
	require.NoError(t, err)

	want := append([]byte{0, 0, 0, 5}, testIDR...)
	want = append(want, 0, 0, 0, 4)
	want = append(want, testP...)
	assert.Equal(t, want, out)
}

func TestDecoderConfigurationRecord(t *testing.T) {
	rec, err := DecoderConfigurationRecord(testSPS, testPPS)
	require.NoError(t, err)

	assert.Equal(t, []byte{0x01, 0x64, 0x00, 0x28, 0xff, 0xe1, 0x00, byte(len(testSPS))}, rec[:8])
	assert.Equal(t, testSPS, rec[8:8+len(testSPS)])
	tail := rec[8+len(testSPS):]
	assert.Equal(t, []byte{0x01, 0x00, byte(len(testPPS))}, tail[:3])
	assert.Equal(t, testPPS, tail[3:])

	sps, pps, ok := ParseDecoderConfigurationRecord(rec)
	require.True(t, ok)
	assert.Equal(t, testSPS, sps)
	assert.Equal(t, testPPS, pps)

	_, err = DecoderConfigurationRecord([]byte{0x67}, testPPS)
	assert.Error(t, err)
}

func TestParseParameterSets(t *testing.T) {
	sps, pps, err := ParseParameterSets(annexB(testSPS, testPPS))
	require.NoError(t, err)
	assert.Equal(t, testSPS, sps)
	assert.Equal(t, testPPS, pps)

	_, _, err = ParseParameterSets(annexB(testIDR))
	assert.Error(t, err)
}

func TestDimensions(t *testing.T) {
	w, h, err := Dimensions(testSPS)
	require.NoError(t, err)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)
}
