// Package analysis provides audio level metering.
//
// Level Metering:
//   - Peak meter with hold and decay
//   - RMS (Root Mean Square) meter
//   - LUFS meter (ITU-R BS.1770-4 compliant)
//   - Momentary, short-term, and integrated loudness
//   - Loudness range (LRA) measurement
//
// All meters are designed for real-time operation with minimal
// allocations and thread-safe access.
//
// Example usage:
//
//	// Create an RMS meter over a one-block window
//	rms := analysis.NewRMSMeter(512)
//	rms.Process(samples)
//	level := rms.GetRMS()
//
//	// Create a LUFS meter
//	lufs := analysis.NewLUFSMeter(48000, 2)
//	lufs.Process(interleavedSamples)
//
//	momentary := lufs.GetMomentaryLUFS()
//	integrated := lufs.GetIntegratedLUFS()
package analysis