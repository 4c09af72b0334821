// Package domain models sound-level readings from a UNI-T UT353BT noise meter
// and the regulatory Leq statistics derived from them.
//
// # Notification Frames
//
// The meter answers every measurement request (a single 0x5e byte written to
// its request characteristic) with one notification frame:
//
//	offset  0..3   vendor header (ignored)
//	offset  4      device class marker, 0x3b for the UT353BT
//	offset  5..    ASCII payload, space padded: "  42.7dBA=" ...
//	offset  14     units marker, 0x3d when the meter reports dB(A)
//
// The payload runs from offset 5 to the first '=' and must carry the "dBA"
// unit token. The text in front of the token is the level in dB(A). Frames
// that fail any check are rejected with one of [ErrMalformedFrame],
// [ErrUnsupportedDevice] or [ErrUnsupportedUnits]; a rejected frame never
// yields a [Reading].
//
// # Leq
//
// The equivalent continuous sound level over a window is the energetic mean
//
//	Leq = 10 * log10( (1/N) * sum(10^(L/10)) )
//
// evaluated separately for the day window [06:00, 22:00) and the night window
// [00:00, 06:00) plus [22:00, 24:00) of each civil date in the reference zone
// (Europe/Rome by default, so CET/CEST transitions are honoured). Both windows
// belong to the date on which their samples were taken: the early-morning part
// of the night is reported under the date it falls on, not the previous one.
//
// N is either the number of samples in the window ([PolicySampleCount], the
// default) or the nominal window length in seconds, 57600 for the day and
// 28800 for the night ([PolicyNominalDuration]). The nominal policy assumes
// one sample per second and under-reports windows with gaps; the sample-count
// policy reports the mean level of whatever was measured.
//
// A window without samples has no Leq. It is carried as an invalid [Level],
// never as zero.
package domain
