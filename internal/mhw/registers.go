package mhw

// Register is an MMIO offset relative to the engine base.
type Register uint32

// Engine registers read or written by emitted commands.
const (
	RegHucStatus         Register = 0x0D000
	RegHucStatus2        Register = 0x0D3B0
	RegVdboxErrorStatus  Register = 0x1C800
	RegVdboxBytesDecoded Register = 0x1C804
	RegVeboxErrorStatus  Register = 0x1A800

	// Watchdog: the threshold is the command budget after arming, control
	// bit 0 arms it.
	RegWatchdogThreshold Register = 0x0217C
	RegWatchdogControl   Register = 0x02178
)

// Firmware status bits.
const (
	// HucAuthenticatedMask is set in RegHucStatus2 once the firmware image
	// passed authentication.
	HucAuthenticatedMask = uint32(1) << 6
	// HucNotAuthenticated is the masked value observed before that.
	HucNotAuthenticated = uint32(0)

	WatchdogEnable  = uint32(1)
	WatchdogDisable = uint32(0)
)
