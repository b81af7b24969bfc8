// Package walkietalkie implements the push-to-talk voice pipelines.
//
// A Sender captures 16-bit mono PCM from an input device, compresses it and
// sends one packet per chunk to each recipient:
//
//	+--------+-----------+--------+-------------------+
//	| seq 16 | ts 32     | ssrc 32| payload           |
//	+--------+-----------+--------+-------------------+
//
// Timestamps count samples since the start of the session and are snapped
// back to the wall clock when capture drifts by more than DriftThreshold.
//
// A Receiver listens on one port, hands every packet to a mixer keyed by
// SSRC and plays the real-time mix. Starting either pipeline while it is
// running restarts it; stopping is idempotent.
package walkietalkie
