// Package hal defines the controller interface used by the device stack.
//
// The device stack implements all USB protocol logic and leaves the HAL to
// move SETUP packets and control data stages between the bus and memory.
// Only the control endpoint is part of the contract: the functions this
// module registers carry no data endpoints.
//
// # Implementing a HAL
//
//  1. Initialize the controller in Init and attach to the bus in Start
//  2. Deliver SETUP packets from ReadSetup, and report bus resets as pkg.ErrReset
//  3. Move the data stage with ReadEP0 and WriteEP0
//  4. Finish the status stage with AckEP0 or StallEP0
//
// A named-pipe implementation for host-side emulation is available in
// [github.com/ardnew/picoreset/device/hal/fifo].
package hal
