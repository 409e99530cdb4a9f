package main

import (
	"fmt"
	"os"

	"vomo/audio"
)

// listDevices prints the capture devices the backend can see, marking
// likely Bluetooth inputs whose capture quality tends to be lower.
func listDevices(actx audio.Context) {
	devices, err := actx.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error enumerating devices: %v\n", err)
		return
	}
	if len(devices) == 0 {
		fmt.Println("No capture devices found.")
		return
	}

	fmt.Printf("Capture devices (%d):\n", len(devices))
	for i, d := range devices {
		tag := ""
		if audio.IsBluetooth(d.Name) {
			tag = "  [BT: lower audio quality]"
		}
		fmt.Printf("  %d. %s%s\n", i+1, d.Name, tag)
	}
	fmt.Println("\nSelect one with -device <name substring> or VOMO_DEVICE.")
}
