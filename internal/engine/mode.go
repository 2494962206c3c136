package engine

// Mode represents the current operating mode of the machine
type Mode string

const (
	ModeIdle            Mode = "IDLE"
	ModeRecording       Mode = "RECORDING"
	ModeStreamingRaw    Mode = "STREAMING_RAW"
	ModePrintingDecoded Mode = "PRINTING_DECODED"
)

// Command bytes accepted while idle.
const (
	CmdRecord byte = 'r'
	CmdPrint  byte = 'd'
	CmdStream byte = 'l'
)

// Status lines written to the link. Hosts match on these.
const (
	LineBanner          = "--- MEMS Audio Streamer ---"
	LineBannerHint      = "Send 'r' to start a 5-second recording."
	LineReady           = "Acquisition ready."
	LineRecording       = "Recording..."
	LineRecordingDone   = "Recording finished."
	LineRecordingCancel = "Recording cancelled."
	LinePrintStart      = "Starting continuous sample printing. Send any character to stop."
	LinePrintStop       = "Stopped continuous printing."
	LineStreamStart     = "Starting live audio stream. Send any character to stop."
	LineStreamStop      = "Stopped live audio stream."
	LineIdleHint        = "Send 'r' to record, 'd' to print samples, or 'l' to stream."
	LineInitFailed      = "Failed to install driver"
)

// ModeForCommand maps a command byte to the mode it enters.
func ModeForCommand(cmd byte) (Mode, bool) {
	switch cmd {
	case CmdRecord:
		return ModeRecording, true
	case CmdPrint:
		return ModePrintingDecoded, true
	case CmdStream:
		return ModeStreamingRaw, true
	default:
		return ModeIdle, false
	}
}
