package sensor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Frame layouts used on the sample transport. Little endian, packed:
//
//	accel: int64 timestamp (ns) | float32 x | float32 y | float32 z
//	ppg:   int64 timestamp (ms) | float64 mean intensity
//	steps: int64 timestamp (ms)
const (
	AccelFrameSize = 8 + 3*4
	PPGFrameSize   = 8 + 8
	StepFrameSize  = 8
)

// EncodeAccel packs samples into consecutive accel frames.
func EncodeAccel(samples []AccelSample) []byte {
	out := make([]byte, AccelFrameSize*len(samples))
	for i, s := range samples {
		b := out[i*AccelFrameSize:]
		binary.LittleEndian.PutUint64(b[0:], uint64(s.TimestampNanos))
		binary.LittleEndian.PutUint32(b[8:], math.Float32bits(s.X))
		binary.LittleEndian.PutUint32(b[12:], math.Float32bits(s.Y))
		binary.LittleEndian.PutUint32(b[16:], math.Float32bits(s.Z))
	}
	return out
}

// DecodeAccel unpacks accel frames. A payload that is not a whole number of
// frames is rejected entirely.
func DecodeAccel(data []byte) ([]AccelSample, error) {
	if len(data)%AccelFrameSize != 0 {
		return nil, fmt.Errorf("accel payload of %d bytes is not a multiple of %d", len(data), AccelFrameSize)
	}
	out := make([]AccelSample, len(data)/AccelFrameSize)
	for i := range out {
		b := data[i*AccelFrameSize:]
		out[i] = AccelSample{
			TimestampNanos: int64(binary.LittleEndian.Uint64(b[0:])),
			X:              math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
			Y:              math.Float32frombits(binary.LittleEndian.Uint32(b[12:])),
			Z:              math.Float32frombits(binary.LittleEndian.Uint32(b[16:])),
		}
	}
	return out, nil
}

// EncodePPG packs samples into consecutive PPG frames.
func EncodePPG(samples []PPGSample) []byte {
	out := make([]byte, PPGFrameSize*len(samples))
	for i, s := range samples {
		b := out[i*PPGFrameSize:]
		binary.LittleEndian.PutUint64(b[0:], uint64(s.TimestampMillis))
		binary.LittleEndian.PutUint64(b[8:], math.Float64bits(s.MeanIntensity))
	}
	return out
}

// DecodePPG unpacks PPG frames.
func DecodePPG(data []byte) ([]PPGSample, error) {
	if len(data)%PPGFrameSize != 0 {
		return nil, fmt.Errorf("ppg payload of %d bytes is not a multiple of %d", len(data), PPGFrameSize)
	}
	out := make([]PPGSample, len(data)/PPGFrameSize)
	for i := range out {
		b := data[i*PPGFrameSize:]
		out[i] = PPGSample{
			TimestampMillis: int64(binary.LittleEndian.Uint64(b[0:])),
			MeanIntensity:   math.Float64frombits(binary.LittleEndian.Uint64(b[8:])),
		}
	}
	return out, nil
}

// EncodeSteps packs platform step timestamps (ms).
func EncodeSteps(timestamps []int64) []byte {
	out := make([]byte, StepFrameSize*len(timestamps))
	for i, ts := range timestamps {
		binary.LittleEndian.PutUint64(out[i*StepFrameSize:], uint64(ts))
	}
	return out
}

// DecodeSteps unpacks platform step frames into samples.
func DecodeSteps(data []byte) ([]Sample, error) {
	if len(data)%StepFrameSize != 0 {
		return nil, fmt.Errorf("step payload of %d bytes is not a multiple of %d", len(data), StepFrameSize)
	}
	out := make([]Sample, len(data)/StepFrameSize)
	for i := range out {
		out[i] = StepCounterSample(int64(binary.LittleEndian.Uint64(data[i*StepFrameSize:])))
	}
	return out, nil
}
